package service

import (
	"context"
	"time"

	availabilityservice "studyreg/internal/availability/service"
	"studyreg/internal/export"
	"studyreg/pkg/config"
	apperrors "studyreg/pkg/errors"
	"studyreg/pkg/model"
)

// AvailabilityReader is what the admin views need from the availability
// model.
type AvailabilityReader interface {
	Roster() model.Roster
	Snapshot(ctx context.Context) (*availabilityservice.Snapshot, error)
}

type LedgerReader interface {
	All(ctx context.Context) ([]model.Booking, error)
}

type CollectorOverview struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Color         string `json:"color"`
	Capacity      int    `json:"capacity"`
	Booked        int    `json:"booked"`
	Remaining     int    `json:"remaining"`
	FillRate      string `json:"fill_rate"`
	AvailableDays int    `json:"available_days"`
	OpenSlots     int    `json:"open_slots"`
}

type Overview struct {
	TotalRegistrations int                 `json:"total_registrations"`
	TotalCapacity      int                 `json:"total_capacity"`
	TotalRemaining     int                 `json:"total_remaining"`
	FillRate           string              `json:"fill_rate"`
	Collectors         []CollectorOverview `json:"collectors"`
	Recent             []model.Booking     `json:"recent"`
	GeneratedAt        time.Time           `json:"generated_at"`
}

const recentBookings = 10

type AdminService interface {
	Overview(ctx context.Context) (*Overview, error)
	Report(ctx context.Context) (*export.Report, error)
}

type adminService struct {
	availability AvailabilityReader
	ledger       LedgerReader
	cfg          *config.Config
	now          func() time.Time
}

func NewAdminService(availability AvailabilityReader, ledger LedgerReader, cfg *config.Config) AdminService {
	return &adminService{
		availability: availability,
		ledger:       ledger,
		cfg:          cfg,
		now:          time.Now,
	}
}

func (s *adminService) Overview(ctx context.Context) (*Overview, error) {
	in, err := s.input(ctx)
	if err != nil {
		return nil, err
	}

	booked := map[string]int{}
	for _, b := range in.Bookings {
		booked[b.CollectorID]++
	}

	out := &Overview{
		TotalRegistrations: len(in.Bookings),
		Collectors:         make([]CollectorOverview, 0, len(in.Roster)),
		GeneratedAt:        in.GeneratedAt,
	}
	for _, c := range in.Roster {
		ceiling := in.DefaultCapacity
		if capacity, ok := in.Capacities[c.ID]; ok {
			ceiling = capacity.Ceiling
		}
		co := CollectorOverview{
			ID:        c.ID,
			Name:      c.Name,
			Email:     c.Email,
			Color:     c.Color,
			Capacity:  ceiling,
			Booked:    booked[c.ID],
			Remaining: max(0, ceiling-booked[c.ID]),
			FillRate:  export.FillRate(booked[c.ID], ceiling),
		}
		if cal := in.Calendars[c.ID]; cal != nil {
			co.AvailableDays = len(cal.Dates)
			co.OpenSlots = cal.SlotCount()
		}
		out.Collectors = append(out.Collectors, co)
		out.TotalCapacity += ceiling
		out.TotalRemaining += co.Remaining
	}
	out.FillRate = export.FillRate(out.TotalRegistrations, out.TotalCapacity)

	n := min(recentBookings, len(in.Bookings))
	out.Recent = append([]model.Booking{}, in.Bookings[:n]...)
	return out, nil
}

func (s *adminService) Report(ctx context.Context) (*export.Report, error) {
	in, err := s.input(ctx)
	if err != nil {
		return nil, err
	}
	r := export.Build(*in)
	s.cfg.Log.Info("Export built",
		"bookings", len(in.Bookings),
		"collectors", len(in.Roster),
	)
	return &r, nil
}

func (s *adminService) input(ctx context.Context) (*export.Input, error) {
	snap, err := s.availability.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	bookings, err := s.ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, apperrors.Internal("Availability snapshot missing", nil)
	}
	return &export.Input{
		Roster:          s.availability.Roster(),
		Bookings:        bookings,
		Calendars:       snap.Calendars,
		Capacities:      snap.Capacities,
		DefaultCapacity: s.cfg.DefaultCapacity,
		GeneratedAt:     s.now().UTC(),
	}, nil
}
