package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"studyreg/internal/export"
	"studyreg/internal/testutil"
	"studyreg/pkg/config"
	dbmongo "studyreg/pkg/db/mongo"
	"studyreg/pkg/logger"
	"studyreg/pkg/model"
	"studyreg/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminCode = "0000"
	slotDate  = "2026-03-02"
	slotTime  = "9:00 AM"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []model.BookingConfirmedEvent
}

func (d *recordingDispatcher) Dispatch(event model.BookingConfirmedEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDispatcher) Close(context.Context) error {
	return nil
}

func (d *recordingDispatcher) Events() []model.BookingConfirmedEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.BookingConfirmedEvent(nil), d.events...)
}

type registrationView struct {
	model.Registration
	AvailableActions []string `json:"available_actions"`
}

type session struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

type harness struct {
	client     *testutil.Client
	dispatcher *recordingDispatcher
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	return &config.Config{
		Port:                "8080",
		RateLimitRequests:   1000,
		RateLimitWindow:     time.Minute,
		RequestTimeout:      5 * time.Second,
		IdempotencyTTL:      time.Minute,
		MaxRequestSize:      1 << 20,
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        5 * time.Second,
		IdleTimeout:         time.Minute,
		ShutdownTimeout:     5 * time.Second,
		SessionTTL:          time.Hour,
		NotificationTimeout: time.Second,
		DefaultCapacity:     10,
		IRBNumber:           "IRB-TEST",
		AdminCode:           adminCode,
		Roster:              model.DefaultRoster(),
		TokenKey:            base64.StdEncoding.EncodeToString(key),
		TokenTTL:            time.Hour,
		Log:                 logger.Discard(),
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, newTestConfig(t))
}

// newHarnessWith serves the application with the server timeouts from cfg.
func newHarnessWith(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	dispatcher := &recordingDispatcher{}

	application, _, err := New(context.Background(), cfg, store.NewMemory(), dispatcher)
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(application.Handler())
	srv.Config.ReadTimeout = cfg.ReadTimeout
	srv.Config.WriteTimeout = cfg.WriteTimeout
	srv.Start()
	t.Cleanup(func() {
		srv.Close()
		application.Stop(context.Background())
	})

	return &harness{
		client:     testutil.NewClient(srv.URL),
		dispatcher: dispatcher,
	}
}

func (h *harness) login(t *testing.T, role, code string) *testutil.Client {
	t.Helper()
	resp := h.client.POST(t, "/api/v1/auth/"+role, map[string]string{"code": code})
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	var s session
	resp.Data(t, &s)
	require.NotEmpty(t, s.Token)
	return h.client.WithToken(s.Token)
}

func (h *harness) step(t *testing.T, method, path string, body any, status int) registrationView {
	t.Helper()
	resp := h.client.Do(t, method, path, body, nil)
	testutil.AssertStatusCode(t, resp, status)
	var view registrationView
	if status < 300 {
		resp.Data(t, &view)
	}
	return view
}

func profile() model.Profile {
	return model.Profile{
		FirstName: "Sam",
		LastName:  "Rivera",
		Email:     "sam.rivera@example.edu",
		Age:       21,
		Level:     "Junior",
		Major:     "Psychology",
	}
}

// reachReview walks a new registration up to the review step on s1's first
// seeded slot.
func (h *harness) reachReview(t *testing.T) string {
	t.Helper()
	started := h.step(t, http.MethodPost, "/api/v1/registrations", nil, http.StatusCreated)
	require.Equal(t, model.StepProfile, started.Step)
	base := "/api/v1/registrations/" + started.ID

	h.step(t, http.MethodPut, base+"/profile", profile(), http.StatusOK)
	h.step(t, http.MethodPost, base+"/consent", nil, http.StatusOK)
	h.step(t, http.MethodPut, base+"/collector", map[string]string{"collector_id": "s1"}, http.StatusOK)
	h.step(t, http.MethodPut, base+"/date", map[string]string{"date": slotDate}, http.StatusOK)
	h.step(t, http.MethodPut, base+"/time", map[string]string{"time": slotTime}, http.StatusOK)
	reviewed := h.step(t, http.MethodPost, base+"/review", nil, http.StatusOK)
	require.Equal(t, model.StepReview, reviewed.Step)
	return started.ID
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)

	testutil.AssertStatusCode(t, h.client.GET(t, "/health"), http.StatusOK)

	ready := h.client.GET(t, "/ready")
	testutil.AssertStatusCode(t, ready, http.StatusOK)
	testutil.AssertContains(t, ready, `"backend":"memory"`)
}

func TestParticipantRegistersAndIsBooked(t *testing.T) {
	h := newHarness(t)
	id := h.reachReview(t)

	confirmed := h.step(t, http.MethodPost, "/api/v1/registrations/"+id+"/confirm", nil, http.StatusOK)
	require.Equal(t, model.StepConfirmed, confirmed.Step)
	require.NotNil(t, confirmed.Booking)
	assert.Empty(t, confirmed.AvailableActions)
	assert.Equal(t, "s1", confirmed.Booking.CollectorID)
	assert.Equal(t, "Sam Rivera", confirmed.Booking.Name)

	require.Eventually(t, func() bool { return len(h.dispatcher.Events()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, confirmed.Booking.ID, h.dispatcher.Events()[0].Booking.ID)

	collector := h.login(t, "collector", model.DefaultRoster()[0].Code)
	mine := collector.GET(t, "/api/v1/collector/bookings")
	testutil.AssertStatusCode(t, mine, http.StatusOK)
	testutil.AssertContains(t, mine, confirmed.Booking.ID)

	admin := h.login(t, "admin", adminCode)
	overview := admin.GET(t, "/api/v1/admin/overview")
	testutil.AssertStatusCode(t, overview, http.StatusOK)
	var ov struct {
		TotalRegistrations int `json:"total_registrations"`
		Collectors         []struct {
			ID     string `json:"id"`
			Booked int    `json:"booked"`
		} `json:"collectors"`
	}
	overview.Data(t, &ov)
	assert.Equal(t, 1, ov.TotalRegistrations)
	for _, c := range ov.Collectors {
		if c.ID == "s1" {
			assert.Equal(t, 1, c.Booked)
		}
	}

	// A second confirm on a confirmed registration changes nothing.
	again := h.step(t, http.MethodPost, "/api/v1/registrations/"+id+"/confirm", nil, http.StatusOK)
	assert.Equal(t, confirmed.Booking.ID, again.Booking.ID)
	assert.Len(t, h.dispatcher.Events(), 1)
}

func TestConfirmAfterCollectorRemovesTime(t *testing.T) {
	h := newHarness(t)
	id := h.reachReview(t)

	collector := h.login(t, "collector", model.DefaultRoster()[0].Code)
	resp := collector.POST(t, "/api/v1/collector/dates/"+slotDate+"/toggle", map[string]string{"time": slotTime})
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	failed := h.client.POST(t, "/api/v1/registrations/"+id+"/confirm", nil)
	testutil.AssertStatusCode(t, failed, http.StatusConflict)
	assert.Equal(t, "STALE_SLOT", failed.ErrorCode(t))

	current := h.step(t, http.MethodGet, "/api/v1/registrations/"+id, nil, http.StatusOK)
	assert.Equal(t, model.StepScheduling, current.Step)
	assert.Empty(t, current.Time)
	assert.Empty(t, h.dispatcher.Events())
}

func TestConfirmWhenCollectorIsFull(t *testing.T) {
	h := newHarness(t)
	id := h.reachReview(t)

	collector := h.login(t, "collector", model.DefaultRoster()[0].Code)
	resp := collector.PUT(t, "/api/v1/collector/capacity", map[string]int{"capacity": 0})
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	failed := h.client.POST(t, "/api/v1/registrations/"+id+"/confirm", nil)
	testutil.AssertStatusCode(t, failed, http.StatusConflict)
	assert.Equal(t, "CAPACITY_EXCEEDED", failed.ErrorCode(t))

	current := h.step(t, http.MethodGet, "/api/v1/registrations/"+id, nil, http.StatusOK)
	assert.Equal(t, model.StepReview, current.Step)
}

func TestConfirmReplaysIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	id := h.reachReview(t)
	headers := map[string]string{"Idempotency-Key": "confirm-once"}

	first := h.client.Do(t, http.MethodPost, "/api/v1/registrations/"+id+"/confirm", nil, headers)
	testutil.AssertStatusCode(t, first, http.StatusOK)
	second := h.client.Do(t, http.MethodPost, "/api/v1/registrations/"+id+"/confirm", nil, headers)
	testutil.AssertStatusCode(t, second, http.StatusOK)

	assert.JSONEq(t, string(first.Body), string(second.Body))
}

func TestActionsOutOfOrderAreRefused(t *testing.T) {
	h := newHarness(t)
	started := h.step(t, http.MethodPost, "/api/v1/registrations", nil, http.StatusCreated)
	base := "/api/v1/registrations/" + started.ID

	resp := h.client.POST(t, base+"/confirm", nil)
	testutil.AssertStatusCode(t, resp, http.StatusConflict)
	assert.Equal(t, "INVALID_STEP", resp.ErrorCode(t))

	bad := profile()
	bad.Age = 17
	resp = h.client.PUT(t, base+"/profile", bad)
	testutil.AssertStatusCode(t, resp, http.StatusUnprocessableEntity)

	unknown := h.client.GET(t, "/api/v1/registrations/does-not-exist")
	testutil.AssertStatusCode(t, unknown, http.StatusNotFound)
}

func TestDeclineAndReconsider(t *testing.T) {
	h := newHarness(t)
	started := h.step(t, http.MethodPost, "/api/v1/registrations", nil, http.StatusCreated)
	base := "/api/v1/registrations/" + started.ID

	h.step(t, http.MethodPut, base+"/profile", profile(), http.StatusOK)
	declined := h.step(t, http.MethodPost, base+"/decline", nil, http.StatusOK)
	assert.Equal(t, model.StepDeclined, declined.Step)

	back := h.step(t, http.MethodPost, base+"/reconsider", nil, http.StatusOK)
	assert.Equal(t, model.StepConsent, back.Step)
	require.NotNil(t, back.Profile)
	assert.Equal(t, "Sam", back.Profile.FirstName)
}

func TestPortalAccessControl(t *testing.T) {
	h := newHarness(t)

	wrong := h.client.POST(t, "/api/v1/auth/collector", map[string]string{"code": "4321"})
	testutil.AssertStatusCode(t, wrong, http.StatusUnauthorized)

	anonymous := h.client.GET(t, "/api/v1/admin/overview")
	testutil.AssertStatusCode(t, anonymous, http.StatusUnauthorized)

	collector := h.login(t, "collector", model.DefaultRoster()[1].Code)
	forbidden := collector.GET(t, "/api/v1/admin/bookings")
	testutil.AssertStatusCode(t, forbidden, http.StatusForbidden)

	roster := h.client.GET(t, "/api/v1/collectors")
	testutil.AssertStatusCode(t, roster, http.StatusOK)
	assert.NotContains(t, string(roster.Body), model.DefaultRoster()[1].Code)
}

func TestAdminExport(t *testing.T) {
	h := newHarness(t)
	id := h.reachReview(t)
	h.step(t, http.MethodPost, "/api/v1/registrations/"+id+"/confirm", nil, http.StatusOK)

	admin := h.login(t, "admin", adminCode)
	resp := admin.GET(t, "/api/v1/admin/export")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "study-data-")
	assert.NotEmpty(t, resp.Body)
}

type ledgerFrame struct {
	Data       []model.Booking `json:"data"`
	TotalCount int             `json:"total_count"`
}

func decodeFrame(t *testing.T, ev testutil.Event) ledgerFrame {
	t.Helper()
	require.Equal(t, "bookings", ev.Name)
	var frame ledgerFrame
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &frame), "data: %s", ev.Data)
	return frame
}

func TestAdminBookingStream(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RequestTimeout = 100 * time.Millisecond
	cfg.WriteTimeout = 300 * time.Millisecond
	h := newHarnessWith(t, cfg)

	admin := h.login(t, "admin", adminCode)
	stream := admin.Stream(t, BookingStreamPath)

	first := decodeFrame(t, stream.Next(t, 2*time.Second))
	assert.Equal(t, 0, first.TotalCount)
	assert.Empty(t, first.Data)

	id := h.reachReview(t)
	// outlive both the request timeout and the server write timeout
	time.Sleep(2 * cfg.WriteTimeout)

	confirmed := h.step(t, http.MethodPost, "/api/v1/registrations/"+id+"/confirm", nil, http.StatusOK)
	require.NotNil(t, confirmed.Booking)

	next := decodeFrame(t, stream.Next(t, 2*time.Second))
	require.Equal(t, 1, next.TotalCount)
	require.Len(t, next.Data, 1)
	assert.Equal(t, confirmed.Booking.ID, next.Data[0].ID)
}

func TestAdminBookingStream_RequiresAdmin(t *testing.T) {
	h := newHarness(t)

	resp := h.client.GET(t, BookingStreamPath)
	testutil.AssertStatusCode(t, resp, http.StatusUnauthorized)

	collector := h.login(t, "collector", model.DefaultRoster()[0].Code)
	resp = collector.GET(t, BookingStreamPath)
	testutil.AssertStatusCode(t, resp, http.StatusForbidden)
}

// txlessStore serves reads and writes but refuses transactions, like a
// standalone MongoDB server.
type txlessStore struct {
	store.Store
}

func (s txlessStore) Transact(context.Context, func(context.Context) error) error {
	return fmt.Errorf("%w: %w", store.ErrUnavailable, dbmongo.ErrTransactionsUnsupported)
}

func TestServicesOnStoreWithoutTransactions(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	s := store.NewFallback(txlessStore{Store: store.NewMemory()}, store.NewMemory(), cfg.Log)
	t.Cleanup(func() { _ = s.Close(ctx) })

	svc, err := NewServices(cfg, s, &recordingDispatcher{})
	require.NoError(t, err)
	require.NoError(t, svc.Availability.Seed(ctx))

	dates, err := svc.Availability.ListOpenDates(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, dates, slotDate, "seeded calendar is readable")

	_, err = svc.Availability.AddDate(ctx, "s1", "2026-04-01")
	require.NoError(t, err)
	_, err = svc.Availability.ToggleTime(ctx, "s1", "2026-04-01", "2:00 PM")
	require.NoError(t, err)
	times, err := svc.Availability.ListTimes(ctx, "s1", "2026-04-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"2:00 PM"}, times)

	booked, err := svc.Bookings.Append(ctx, &model.Booking{
		FirstName:   "Sam",
		LastName:    "Rivera",
		Email:       "sam.rivera@example.edu",
		Age:         20,
		Level:       "Junior",
		Major:       "Psychology",
		CollectorID: "s1",
		Date:        "2026-04-01",
		Time:        "2:00 PM",
	})
	require.NoError(t, err)

	all, err := svc.Bookings.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, booked.ID, all[0].ID)

	count, err := svc.Bookings.CountFor(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
