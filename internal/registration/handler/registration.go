package handler

import (
	"net/http"

	"studyreg/internal/registration/service"
	"studyreg/pkg/config"
	httputil "studyreg/pkg/http"
	"studyreg/pkg/logger"
	"studyreg/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// RegistrationView is a registration plus the actions its step allows.
type RegistrationView struct {
	*model.Registration
	AvailableActions []service.Action `json:"available_actions"`
}

// StudyInfo is the static reference data the participant portal renders.
type StudyInfo struct {
	IRBNumber      string   `json:"irb_number"`
	AcademicLevels []string `json:"academic_levels"`
	MinAge         int      `json:"min_age"`
	MaxAge         int      `json:"max_age"`
	DayParts       []string `json:"day_parts"`
	SessionGapDays int      `json:"session_gap_days"`
}

type collectorRequest struct {
	CollectorID string `json:"collector_id"`
}

type dateRequest struct {
	Date string `json:"date"`
}

type timeRequest struct {
	Time string `json:"time"`
}

type RegistrationHandler struct {
	service service.RegistrationService
	cfg     *config.Config
	log     *logger.Logger
	confirm func(httprouter.Handle) httprouter.Handle
}

// NewRegistrationHandler serves the participant portal. confirm wraps the
// confirm route (idempotency replay, rate limiting) and may be nil.
func NewRegistrationHandler(service service.RegistrationService, cfg *config.Config, log *logger.Logger, confirm func(httprouter.Handle) httprouter.Handle) *RegistrationHandler {
	if confirm == nil {
		confirm = func(h httprouter.Handle) httprouter.Handle { return h }
	}
	return &RegistrationHandler{
		service: service,
		cfg:     cfg,
		log:     log,
		confirm: confirm,
	}
}

func (h *RegistrationHandler) Study(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	info := StudyInfo{
		IRBNumber:      h.cfg.IRBNumber,
		AcademicLevels: model.AcademicLevels,
		MinAge:         model.MinParticipantAge,
		MaxAge:         model.MaxParticipantAge,
		DayParts:       model.DayParts,
		SessionGapDays: 3,
	}
	if err := httputil.WriteSuccess(w, info); err != nil {
		h.log.Error("failed to write success response", "handler", "Study", "operation", "WriteSuccess", "error", err)
	}
}

func (h *RegistrationHandler) Start(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	reg, err := h.service.Start(r.Context())
	if err != nil {
		h.writeError(w, "Start", err)
		return
	}
	if err := httputil.WriteCreated(w, view(reg)); err != nil {
		h.log.Error("failed to write created response", "handler", "Start", "operation", "WriteCreated", "error", err)
	}
}

func (h *RegistrationHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reg, err := h.service.Get(r.Context(), ps.ByName("id"))
	h.respond(w, "Get", reg, err)
}

func (h *RegistrationHandler) SubmitProfile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var profile model.Profile
	if err := httputil.DecodeJSON(r, &profile); err != nil {
		h.writeError(w, "SubmitProfile", err)
		return
	}
	reg, err := h.service.SubmitProfile(r.Context(), ps.ByName("id"), profile)
	h.respond(w, "SubmitProfile", reg, err)
}

func (h *RegistrationHandler) Consent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reg, err := h.service.Consent(r.Context(), ps.ByName("id"))
	h.respond(w, "Consent", reg, err)
}

func (h *RegistrationHandler) Decline(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reg, err := h.service.Decline(r.Context(), ps.ByName("id"))
	h.respond(w, "Decline", reg, err)
}

func (h *RegistrationHandler) Reconsider(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reg, err := h.service.Reconsider(r.Context(), ps.ByName("id"))
	h.respond(w, "Reconsider", reg, err)
}

func (h *RegistrationHandler) Back(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reg, err := h.service.Back(r.Context(), ps.ByName("id"))
	h.respond(w, "Back", reg, err)
}

func (h *RegistrationHandler) SelectCollector(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req collectorRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "SelectCollector", err)
		return
	}
	reg, err := h.service.SelectCollector(r.Context(), ps.ByName("id"), req.CollectorID)
	h.respond(w, "SelectCollector", reg, err)
}

func (h *RegistrationHandler) SelectDate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req dateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "SelectDate", err)
		return
	}
	reg, err := h.service.SelectDate(r.Context(), ps.ByName("id"), req.Date)
	h.respond(w, "SelectDate", reg, err)
}

func (h *RegistrationHandler) SelectTime(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req timeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "SelectTime", err)
		return
	}
	reg, err := h.service.SelectTime(r.Context(), ps.ByName("id"), req.Time)
	h.respond(w, "SelectTime", reg, err)
}

func (h *RegistrationHandler) Review(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reg, err := h.service.Review(r.Context(), ps.ByName("id"))
	h.respond(w, "Review", reg, err)
}

func (h *RegistrationHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	reg, err := h.service.Confirm(r.Context(), ps.ByName("id"))
	h.respond(w, "Confirm", reg, err)
}

func (h *RegistrationHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/study", h.Study)

	router.POST("/api/v1/registrations", h.Start)
	router.GET("/api/v1/registrations/:id", h.Get)
	router.PUT("/api/v1/registrations/:id/profile", h.SubmitProfile)
	router.POST("/api/v1/registrations/:id/consent", h.Consent)
	router.POST("/api/v1/registrations/:id/decline", h.Decline)
	router.POST("/api/v1/registrations/:id/reconsider", h.Reconsider)
	router.POST("/api/v1/registrations/:id/back", h.Back)
	router.PUT("/api/v1/registrations/:id/collector", h.SelectCollector)
	router.PUT("/api/v1/registrations/:id/date", h.SelectDate)
	router.PUT("/api/v1/registrations/:id/time", h.SelectTime)
	router.POST("/api/v1/registrations/:id/review", h.Review)
	router.POST("/api/v1/registrations/:id/confirm", h.confirm(h.Confirm))
}

func view(reg *model.Registration) RegistrationView {
	return RegistrationView{
		Registration:     reg,
		AvailableActions: service.AllowedActions(reg.Step),
	}
}

func (h *RegistrationHandler) respond(w http.ResponseWriter, name string, reg *model.Registration, err error) {
	if err != nil {
		h.writeError(w, name, err)
		return
	}
	if err := httputil.WriteSuccess(w, view(reg)); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *RegistrationHandler) writeError(w http.ResponseWriter, name string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
	}
}
