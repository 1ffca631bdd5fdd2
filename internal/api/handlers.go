package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"swap_calc/internal/domain"
	"swap_calc/internal/infra"
	"swap_calc/internal/service"
)

// InitDataHeader carries the opaque host token on POST /start.
const InitDataHeader = "X-Init-Data"

// Controller is the session surface the handlers drive.
type Controller interface {
	Start(ctx context.Context, id domain.OrderIdentity) error
	Reload(ctx context.Context) error
	EditQuote(raw string) domain.AmountPair
	EditTarget(raw string) domain.AmountPair
	RequestConfirmation() error
	Confirm(ctx context.Context) error
	Cancel()
	Snapshot() service.View
}

// Handler translates HTTP calls into controller transitions.
type Handler struct {
	ctrl    Controller
	metrics *infra.Metrics
	botURL  string
	logger  *slog.Logger
}

// NewHandler creates the session handler.
func NewHandler(ctrl Controller, metrics *infra.Metrics, botURL string, logger *slog.Logger) *Handler {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Handler{
		ctrl:    ctrl,
		metrics: metrics,
		botURL:  botURL,
		logger:  infra.Module(logger, "api"),
	}
}

type editRequest struct {
	Value string `json:"value"`
}

func (h *Handler) view() sessionView {
	return newSessionView(h.ctrl.Snapshot(), h.botURL)
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleState returns the current view.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.view())
}

// HandleStart captures the launch parameters and loads the terms.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := domain.OrderIdentity{
		OrderID:  q.Get("order_id"),
		MethodID: q.Get("method_id"),
		InitData: r.Header.Get(InitDataHeader),
	}
	h.respond(w, h.ctrl.Start(detach(r), id))
}

// HandleReload refetches the terms after a failed load.
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.ctrl.Reload(detach(r)))
}

// HandleQuote applies an edit of the quote field.
func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEdit(w, r)
	if !ok {
		return
	}
	h.ctrl.EditQuote(req.Value)
	JSON(w, http.StatusOK, h.view())
}

// HandleTarget applies an edit of the target field.
func (h *Handler) HandleTarget(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEdit(w, r)
	if !ok {
		return
	}
	h.ctrl.EditTarget(req.Value)
	JSON(w, http.StatusOK, h.view())
}

// HandleRequestConfirmation opens the confirmation step.
func (h *Handler) HandleRequestConfirmation(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.ctrl.RequestConfirmation())
}

// HandleConfirm submits the amount.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.ctrl.Confirm(detach(r)))
}

// HandleCancel closes the confirmation step and clears the fields.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Cancel()
	JSON(w, http.StatusOK, h.view())
}

// HandleMetrics exposes the counters.
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.metrics.Snapshot())
}

func (h *Handler) respond(w http.ResponseWriter, err error) {
	view := h.view()
	if err == nil {
		JSON(w, http.StatusOK, view)
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("Request failed", slog.Int("status", status), slog.Any("error", err))
	}
	Error(w, status, domain.NoticeOf(err), view)
}

// detach keeps request values but drops cancellation: a client that goes
// away must not abort a call the order service may already have applied.
// The order API client's own timeout still bounds each call.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func decodeEdit(w http.ResponseWriter, r *http.Request) (editRequest, bool) {
	var req editRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body", nil)
		return req, false
	}
	return req, true
}

// statusFor maps controller errors onto HTTP statuses.
func statusFor(err error) int {
	var se *domain.SessionError
	if errors.As(err, &se) {
		switch se.Kind {
		case domain.KindTransport:
			return http.StatusBadGateway
		case domain.KindLimit:
			return http.StatusUnprocessableEntity
		default:
			return http.StatusConflict
		}
	}
	switch {
	case errors.Is(err, domain.ErrSessionStarted),
		errors.Is(err, domain.ErrSubmissionInFlight),
		errors.Is(err, domain.ErrAlreadySubmitted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoOrderContext),
		errors.Is(err, domain.ErrNothingToConfirm),
		errors.Is(err, domain.ErrNoConfirmation):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
