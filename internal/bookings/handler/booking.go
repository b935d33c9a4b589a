package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	bookingserrors "studyreg/internal/bookings/errors"
	"studyreg/internal/bookings/service"
	apperrors "studyreg/pkg/errors"
	httputil "studyreg/pkg/http"
	"studyreg/pkg/logger"
	"studyreg/pkg/middleware"
	"studyreg/pkg/model"

	"github.com/julienschmidt/httprouter"
)

const streamKeepAlive = 25 * time.Second

type BookingHandler struct {
	service   service.BookingService
	log       *logger.Logger
	admin     func(httprouter.Handle) httprouter.Handle
	collector func(httprouter.Handle) httprouter.Handle
}

func NewBookingHandler(
	service service.BookingService,
	log *logger.Logger,
	admin func(httprouter.Handle) httprouter.Handle,
	collector func(httprouter.Handle) httprouter.Handle,
) *BookingHandler {
	return &BookingHandler{
		service:   service,
		log:       log,
		admin:     admin,
		collector: collector,
	}
}

func (h *BookingHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var (
		bookings []model.Booking
		err      error
	)
	if collectorID := r.URL.Query().Get("collector_id"); collectorID != "" {
		bookings, err = h.service.ListFor(r.Context(), collectorID)
	} else {
		bookings, err = h.service.All(r.Context())
	}
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WriteList(w, bookings, len(bookings)); err != nil {
		h.log.Error("failed to write list response", "handler", "GetAll", "operation", "WriteList", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

// GetMine lists the calling collector's own bookings.
func (h *BookingHandler) GetMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, "GetMine", apperrors.Unauthorized("Missing session token"))
		return
	}

	bookings, err := h.service.ListFor(r.Context(), p.Subject)
	if err != nil {
		h.writeError(w, "GetMine", err)
		return
	}

	if err := httputil.WriteList(w, bookings, len(bookings)); err != nil {
		h.log.Error("failed to write list response", "handler", "GetMine", "operation", "WriteList", "error", err)
	}
}

// Stream pushes the full ledger as a server-sent event on connect and after
// every change until the client goes away.
func (h *BookingHandler) Stream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, "Stream", apperrors.Internal("Streaming unsupported", nil))
		return
	}

	feed, err := h.service.Watch(r.Context())
	if err != nil {
		h.writeError(w, "Stream", err)
		return
	}
	defer feed.Close()

	// The server write timeout would otherwise cut the stream.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug("stream write deadline not cleared", "handler", "Stream", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	updates := make(chan []model.Booking)
	errs := make(chan error, 1)
	go func() {
		for {
			bookings, err := feed.Next(r.Context())
			if err != nil {
				errs <- err
				return
			}
			select {
			case updates <- bookings:
			case <-r.Context().Done():
				return
			}
		}
	}()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case bookings := <-updates:
			data, err := json.Marshal(httputil.ListResponse{Data: bookings, TotalCount: len(bookings)})
			if err != nil {
				h.log.Error("failed to encode ledger snapshot", "handler", "Stream", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: bookings\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case err := <-errs:
			if !errors.Is(err, bookingserrors.ErrFeedClosed) && r.Context().Err() == nil {
				h.log.Warn("Ledger stream ended", "handler", "Stream", "error", err)
			}
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/admin/bookings", h.admin(h.GetAll))
	router.GET("/api/v1/admin/bookings/stream", h.admin(h.Stream))
	router.GET("/api/v1/admin/bookings/id/:id", h.admin(h.GetByID))
	router.GET("/api/v1/collector/bookings", h.collector(h.GetMine))
}

func (h *BookingHandler) writeError(w http.ResponseWriter, name string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
	}
}
