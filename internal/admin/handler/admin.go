package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"studyreg/internal/admin/service"
	"studyreg/internal/export"
	apperrors "studyreg/pkg/errors"
	httputil "studyreg/pkg/http"
	"studyreg/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type AdminHandler struct {
	service service.AdminService
	log     *logger.Logger
	admin   func(httprouter.Handle) httprouter.Handle
}

func NewAdminHandler(service service.AdminService, log *logger.Logger, admin func(httprouter.Handle) httprouter.Handle) *AdminHandler {
	return &AdminHandler{
		service: service,
		log:     log,
		admin:   admin,
	}
}

func (h *AdminHandler) Overview(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.writeError(w, "Overview", err)
		return
	}
	if err := httputil.WriteSuccess(w, overview); err != nil {
		h.log.Error("failed to write success response", "handler", "Overview", "operation", "WriteSuccess", "error", err)
	}
}

// Export streams the workbook as an attachment. It is rendered into memory
// first so a failure can still be reported as JSON.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	report, err := h.service.Report(r.Context())
	if err != nil {
		h.writeError(w, "Export", err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, *report); err != nil {
		h.log.Error("failed to render workbook", "handler", "Export", "error", err)
		h.writeError(w, "Export", apperrors.Internal("Failed to build export", err))
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(report.GeneratedAt)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Error("failed to write export", "handler", "Export", "error", err)
	}
}

func (h *AdminHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/admin/overview", h.admin(h.Overview))
	router.GET("/api/v1/admin/export", h.admin(h.Export))
}

func (h *AdminHandler) writeError(w http.ResponseWriter, name string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
	}
}
