// Package server assembles the registration API from its domains.
package server

import (
	"context"
	"fmt"

	adminhandler "studyreg/internal/admin/handler"
	adminservice "studyreg/internal/admin/service"
	authhandler "studyreg/internal/auth/handler"
	authservice "studyreg/internal/auth/service"
	availabilityhandler "studyreg/internal/availability/handler"
	availabilityrepo "studyreg/internal/availability/repository"
	availabilityservice "studyreg/internal/availability/service"
	availabilityvalidator "studyreg/internal/availability/validator"
	bookinghandler "studyreg/internal/bookings/handler"
	bookingrepo "studyreg/internal/bookings/repository"
	bookingservice "studyreg/internal/bookings/service"
	bookingvalidator "studyreg/internal/bookings/validator"
	"studyreg/internal/notifications"
	registrationhandler "studyreg/internal/registration/handler"
	registrationrepo "studyreg/internal/registration/repository"
	registrationservice "studyreg/internal/registration/service"
	registrationvalidator "studyreg/internal/registration/validator"
	"studyreg/pkg/app"
	"studyreg/pkg/config"
	"studyreg/pkg/middleware"
	"studyreg/pkg/model"
	"studyreg/pkg/store"
)

const BookingStreamPath = "/api/v1/admin/bookings/stream"

// Services exposes the assembled domain services, mainly for tests and
// the offline tools.
type Services struct {
	Auth         authservice.AuthService
	Availability availabilityservice.AvailabilityService
	Bookings     bookingservice.BookingService
	Registration registrationservice.RegistrationService
	Admin        adminservice.AdminService
	Sessions     registrationrepo.SessionRepository
}

// NewServices wires the domain services over one store. The booking
// repository doubles as the availability service's booking counter so
// capacity is always derived from the same ledger appends write to.
func NewServices(cfg *config.Config, s store.Store, dispatcher notifications.Dispatcher) (*Services, error) {
	auth, err := authservice.NewAuthService(cfg)
	if err != nil {
		return nil, err
	}

	bookings := bookingrepo.NewStoreBookingRepository(cfg, s)
	availability := availabilityservice.NewAvailabilityService(
		availabilityrepo.NewStoreAvailabilityRepository(cfg, s),
		bookings,
		availabilityvalidator.NewAvailabilityValidator(cfg.Log),
		cfg,
	)
	ledger := bookingservice.NewBookingService(
		bookings,
		availability,
		bookingvalidator.NewBookingValidator(cfg.Log),
		cfg,
	)
	sessions := registrationrepo.NewMemorySessionRepository(cfg.SessionTTL)
	registration := registrationservice.NewRegistrationService(
		sessions,
		availability,
		ledger,
		dispatcher,
		registrationvalidator.NewRegistrationValidator(cfg.Log),
		cfg,
	)

	return &Services{
		Auth:         auth,
		Availability: availability,
		Bookings:     ledger,
		Registration: registration,
		Admin:        adminservice.NewAdminService(availability, ledger, cfg),
		Sessions:     sessions,
	}, nil
}

// New builds the HTTP application. The store is seeded before any route
// is served.
func New(ctx context.Context, cfg *config.Config, s store.Store, dispatcher notifications.Dispatcher) (*app.Application, *Services, error) {
	svc, err := NewServices(cfg, s, dispatcher)
	if err != nil {
		return nil, nil, err
	}
	if err := svc.Availability.Seed(ctx); err != nil {
		return nil, nil, fmt.Errorf("seed availability: %w", err)
	}

	application := app.NewApplication(cfg, s)
	admin := middleware.RequireRole(svc.Auth, cfg.Log, model.RoleAdmin)
	collector := middleware.RequireRole(svc.Auth, cfg.Log, model.RoleCollector)

	application.Unbuffered(BookingStreamPath)
	application.SetApp(
		authhandler.NewAuthHandler(svc.Auth, cfg.Log, application.LoginLimit()),
		availabilityhandler.NewAvailabilityHandler(svc.Availability, cfg.Log, collector),
		bookinghandler.NewBookingHandler(svc.Bookings, cfg.Log, admin, collector),
		registrationhandler.NewRegistrationHandler(svc.Registration, cfg, cfg.Log, application.Confirm()),
		adminhandler.NewAdminHandler(svc.Admin, cfg.Log, admin),
	)

	application.OnShutdown("store", s.Close)
	application.OnShutdown("notifications", dispatcher.Close)
	application.OnShutdown("sessions", func(context.Context) error {
		svc.Sessions.Stop()
		return nil
	})
	return application, svc, nil
}

// OpenStore runs on the local store alone in demo mode or when MongoDB cannot
// run transactions. Otherwise MongoDB is primary and the local store takes
// over for the rest of the process once MongoDB becomes unreachable.
func OpenStore(cfg *config.Config) store.Store {
	local := store.NewMemory()
	if cfg.StoreDemoMode() {
		cfg.Log.Warn("No document store configured, running on the local store only")
		return local
	}

	cfg.SetMongo()
	if cfg.Client.Mongo == nil {
		return local
	}
	remote := store.NewMongo(cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoConnTimeout)
	defer cancel()
	ok, err := remote.SupportsTransactions(ctx)
	switch {
	case err != nil:
		cfg.Log.Warn("Could not check MongoDB transaction support", "error", err)
	case !ok:
		cfg.Log.Error("MongoDB is not a replica set and cannot run booking transactions, running on the local store only",
			"database", cfg.MongoDatabaseName,
		)
		_ = remote.Close(ctx)
		return local
	}

	cfg.Log.Info("Store initialized", "primary", remote.Backend(), "fallback", local.Backend(), "database", cfg.MongoDatabaseName)
	return store.NewFallback(remote, local, cfg.Log)
}
