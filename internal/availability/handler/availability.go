package handler

import (
	"net/http"

	"studyreg/internal/availability/service"
	apperrors "studyreg/pkg/errors"
	httputil "studyreg/pkg/http"
	"studyreg/pkg/logger"
	"studyreg/pkg/middleware"
	"studyreg/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// CollectorSummary is the public roster entry. Codes and emails stay private.
type CollectorSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Color     string `json:"color"`
	Initials  string `json:"initials"`
	Capacity  int    `json:"capacity"`
	Booked    int    `json:"booked"`
	Remaining int    `json:"remaining"`
	OpenDates int    `json:"open_dates"`
	OpenSlots int    `json:"open_slots"`
}

type CalendarView struct {
	Calendar *model.Calendar `json:"calendar"`
	Capacity *model.Capacity `json:"capacity"`
}

type dateRequest struct {
	Date string `json:"date"`
}

type timesRequest struct {
	Times []string `json:"times"`
}

type toggleRequest struct {
	Time string `json:"time"`
}

type capacityRequest struct {
	Capacity *int `json:"capacity"`
}

type adjustRequest struct {
	Delta int `json:"delta"`
}

type AvailabilityHandler struct {
	service   service.AvailabilityService
	log       *logger.Logger
	collector func(httprouter.Handle) httprouter.Handle
}

// NewAvailabilityHandler serves the public roster and the collector portal.
// collector guards the portal routes and must put a collector principal in
// the request context.
func NewAvailabilityHandler(service service.AvailabilityService, log *logger.Logger, collector func(httprouter.Handle) httprouter.Handle) *AvailabilityHandler {
	return &AvailabilityHandler{
		service:   service,
		log:       log,
		collector: collector,
	}
}

func (h *AvailabilityHandler) ListCollectors(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap, err := h.service.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, "ListCollectors", err)
		return
	}

	roster := h.service.Roster()
	out := make([]CollectorSummary, 0, len(roster))
	for _, c := range roster {
		cal := snap.Calendars[c.ID]
		capacity := snap.Capacities[c.ID]
		out = append(out, CollectorSummary{
			ID:        c.ID,
			Name:      c.Name,
			Role:      c.Role,
			Color:     c.Color,
			Initials:  c.Initials(),
			Capacity:  capacity.Ceiling,
			Booked:    capacity.Booked,
			Remaining: capacity.Remaining(),
			OpenDates: len(cal.OpenDates()),
			OpenSlots: cal.SlotCount(),
		})
	}

	if err := httputil.WriteList(w, out, len(out)); err != nil {
		h.log.Error("failed to write list response", "handler", "ListCollectors", "operation", "WriteList", "error", err)
	}
}

func (h *AvailabilityHandler) ListOpenDates(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	dates, err := h.service.ListOpenDates(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "ListOpenDates", err)
		return
	}
	h.writeSuccess(w, "ListOpenDates", dates)
}

func (h *AvailabilityHandler) ListTimes(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	times, err := h.service.ListTimes(r.Context(), ps.ByName("id"), ps.ByName("date"))
	if err != nil {
		h.writeError(w, "ListTimes", err)
		return
	}
	h.writeSuccess(w, "ListTimes", times)
}

func (h *AvailabilityHandler) GetCalendar(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	collectorID := h.collectorID(r)

	cal, err := h.service.Calendar(r.Context(), collectorID)
	if err != nil {
		h.writeError(w, "GetCalendar", err)
		return
	}
	capacity, err := h.service.Capacity(r.Context(), collectorID)
	if err != nil {
		h.writeError(w, "GetCalendar", err)
		return
	}
	h.writeSuccess(w, "GetCalendar", CalendarView{Calendar: cal, Capacity: capacity})
}

func (h *AvailabilityHandler) AddDate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req dateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "AddDate", err)
		return
	}

	change, err := h.service.AddDate(r.Context(), h.collectorID(r), req.Date)
	if err != nil {
		h.writeError(w, "AddDate", err)
		return
	}
	h.writeSuccess(w, "AddDate", change)
}

func (h *AvailabilityHandler) SetSlots(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req timesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "SetSlots", err)
		return
	}

	change, err := h.service.SetSlots(r.Context(), h.collectorID(r), ps.ByName("date"), req.Times)
	if err != nil {
		h.writeError(w, "SetSlots", err)
		return
	}
	h.writeSuccess(w, "SetSlots", change)
}

func (h *AvailabilityHandler) ToggleTime(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req toggleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "ToggleTime", err)
		return
	}

	change, err := h.service.ToggleTime(r.Context(), h.collectorID(r), ps.ByName("date"), req.Time)
	if err != nil {
		h.writeError(w, "ToggleTime", err)
		return
	}
	h.writeSuccess(w, "ToggleTime", change)
}

func (h *AvailabilityHandler) RemoveDate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	change, err := h.service.RemoveDate(r.Context(), h.collectorID(r), ps.ByName("date"))
	if err != nil {
		h.writeError(w, "RemoveDate", err)
		return
	}
	h.writeSuccess(w, "RemoveDate", change)
}

func (h *AvailabilityHandler) SetCapacity(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req capacityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "SetCapacity", err)
		return
	}
	if req.Capacity == nil {
		h.writeError(w, "SetCapacity", apperrors.Validation("Invalid capacity", map[string]any{"capacity": "capacity is required"}))
		return
	}

	change, err := h.service.SetCapacity(r.Context(), h.collectorID(r), *req.Capacity)
	if err != nil {
		h.writeError(w, "SetCapacity", err)
		return
	}
	h.writeSuccess(w, "SetCapacity", change)
}

func (h *AvailabilityHandler) AdjustCapacity(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req adjustRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "AdjustCapacity", err)
		return
	}

	change, err := h.service.AdjustCapacity(r.Context(), h.collectorID(r), req.Delta)
	if err != nil {
		h.writeError(w, "AdjustCapacity", err)
		return
	}
	h.writeSuccess(w, "AdjustCapacity", change)
}

func (h *AvailabilityHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/collectors", h.ListCollectors)
	router.GET("/api/v1/collectors/:id/dates", h.ListOpenDates)
	router.GET("/api/v1/collectors/:id/dates/:date", h.ListTimes)

	router.GET("/api/v1/collector/calendar", h.collector(h.GetCalendar))
	router.POST("/api/v1/collector/dates", h.collector(h.AddDate))
	router.PUT("/api/v1/collector/dates/:date", h.collector(h.SetSlots))
	router.POST("/api/v1/collector/dates/:date/toggle", h.collector(h.ToggleTime))
	router.DELETE("/api/v1/collector/dates/:date", h.collector(h.RemoveDate))
	router.PUT("/api/v1/collector/capacity", h.collector(h.SetCapacity))
	router.POST("/api/v1/collector/capacity/adjust", h.collector(h.AdjustCapacity))
}

// collectorID is the authenticated collector. Edits are only ever applied to
// the caller's own calendar.
func (h *AvailabilityHandler) collectorID(r *http.Request) string {
	if p, ok := middleware.PrincipalFrom(r.Context()); ok && p.Role == model.RoleCollector {
		return p.Subject
	}
	return ""
}

func (h *AvailabilityHandler) writeSuccess(w http.ResponseWriter, name string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) writeError(w http.ResponseWriter, name string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
	}
}
