package handler

import (
	"context"
	"net/http"

	"studyreg/internal/auth/service"
	httputil "studyreg/pkg/http"
	"studyreg/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type codeRequest struct {
	Code string `json:"code"`
}

type AuthHandler struct {
	service service.AuthService
	log     *logger.Logger
	limit   func(httprouter.Handle) httprouter.Handle
}

// NewAuthHandler wraps both login routes with limit, which may be nil.
func NewAuthHandler(service service.AuthService, log *logger.Logger, limit func(httprouter.Handle) httprouter.Handle) *AuthHandler {
	if limit == nil {
		limit = func(h httprouter.Handle) httprouter.Handle { return h }
	}
	return &AuthHandler{service: service, log: log, limit: limit}
}

func (h *AuthHandler) LoginCollector(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.login(w, r, "LoginCollector", h.service.LoginCollector)
}

func (h *AuthHandler) LoginAdmin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.login(w, r, "LoginAdmin", h.service.LoginAdmin)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, name string, fn func(ctx context.Context, code string) (*service.Session, error)) {
	var req codeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
		}
		return
	}

	session, err := fn(r.Context(), req.Code)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, session); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *AuthHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/auth/collector", h.limit(h.LoginCollector))
	router.POST("/api/v1/auth/admin", h.limit(h.LoginAdmin))
}
