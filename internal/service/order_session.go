package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"swap_calc/internal/domain"
	"swap_calc/internal/infra"

	"github.com/shopspring/decimal"
)

// errStaleFetch marks a fetch whose result was superseded by a newer one.
var errStaleFetch = errors.New("stale terms fetch")

// SessionDeps wires an OrderSession.
type SessionDeps struct {
	API               domain.OrderAPI
	Journal           domain.SubmissionJournal // Optional
	Metrics           *infra.Metrics
	Logger            *slog.Logger
	MaxLimitRefetches int
}

// OrderSession is the single source of truth for one remote order: its
// terms and the outcome of submitting an amount against it.
type OrderSession struct {
	api          domain.OrderAPI
	journal      domain.SubmissionJournal
	metrics      *infra.Metrics
	logger       *slog.Logger
	maxRefetches int

	mu       sync.Mutex
	state    domain.SessionState
	terms    *domain.OrderTerms
	lastErr  *domain.SessionError
	fetchGen uint64 // Generation of the newest fetch
}

// NewOrderSession creates a session in the Loading state.
func NewOrderSession(deps SessionDeps) *OrderSession {
	if deps.Metrics == nil {
		deps.Metrics = infra.GlobalMetrics
	}
	if deps.MaxLimitRefetches <= 0 {
		deps.MaxLimitRefetches = 3
	}
	return &OrderSession{
		api:          deps.API,
		journal:      deps.Journal,
		metrics:      deps.Metrics,
		logger:       infra.Module(deps.Logger, "order_session"),
		maxRefetches: deps.MaxLimitRefetches,
		state:        domain.StateLoading,
	}
}

// State returns the current lifecycle state.
func (s *OrderSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Terms returns a copy of the current terms, or nil before the first
// successful fetch.
func (s *OrderSession) Terms() *domain.OrderTerms {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terms == nil {
		return nil
	}
	t := *s.terms
	return &t
}

// Notice returns the user-facing text of the last failure, if any.
func (s *OrderSession) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		return ""
	}
	return s.lastErr.Notice()
}

// FetchTerms loads the order terms. Without an order context it does
// nothing and returns (nil, nil), leaving the session Loading.
// A limit error triggers an automatic refetch, at most MaxLimitRefetches
// times; transport failures are returned as they are.
func (s *OrderSession) FetchTerms(ctx context.Context, id domain.OrderIdentity) (*domain.OrderTerms, error) {
	if !id.HasContext() {
		s.logger.Debug("No order context, terms fetch skipped")
		return nil, nil
	}
	if s.State().IsTerminal() {
		return nil, domain.ErrAlreadySubmitted
	}
	return s.fetchWithRecovery(ctx, id)
}

func (s *OrderSession) fetchWithRecovery(ctx context.Context, id domain.OrderIdentity) (*domain.OrderTerms, error) {
	for attempt := 0; ; attempt++ {
		terms, err := s.fetchOnce(ctx, id)
		if err == nil || !domain.IsRetriable(err) {
			return terms, err
		}
		if attempt >= s.maxRefetches {
			s.logger.Warn("Giving up on limit refetches", slog.String("order_id", id.OrderID), slog.Int("attempts", attempt+1))
			return nil, err
		}
		s.metrics.RecordAutoRefetch()
		s.logger.Info("Limit error on terms, refetching", slog.String("order_id", id.OrderID), slog.Int("attempt", attempt+1))
	}
}

// fetchOnce issues exactly one terms-init call and applies its result
// unless a newer fetch has started in the meantime.
func (s *OrderSession) fetchOnce(ctx context.Context, id domain.OrderIdentity) (*domain.OrderTerms, error) {
	s.mu.Lock()
	s.fetchGen++
	gen := s.fetchGen
	if s.state != domain.StateConfirming {
		s.state = domain.StateLoading
	}
	s.mu.Unlock()

	reply, err := s.api.FetchTerms(ctx, domain.NewTermsRequest(id))

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.fetchGen {
		s.logger.Debug("Discarding stale terms", slog.Uint64("gen", gen), slog.Uint64("latest", s.fetchGen))
		return nil, errStaleFetch
	}

	var sessErr *domain.SessionError
	switch {
	case err != nil:
		s.metrics.RecordTransportError()
		sessErr = domain.NewTransportError(domain.OpFetch, err)
	case reply.ErrorCode != "":
		s.metrics.RecordBusinessError()
		sessErr = domain.NewBusinessError(domain.OpFetch, reply.ErrorCode)
	}

	if sessErr != nil {
		s.lastErr = sessErr
		if s.state != domain.StateConfirming {
			s.state = domain.StateError
		}
		s.logger.Warn("Terms fetch failed", slog.String("order_id", id.OrderID), slog.String("kind", sessErr.Kind.String()), slog.Any("error", sessErr))
		return nil, sessErr
	}

	terms := reply.Terms
	s.terms = &terms
	s.lastErr = nil
	if s.state != domain.StateConfirming {
		s.state = domain.StateReady
	}
	s.metrics.RecordTermsFetched()
	s.logger.Info("Terms loaded",
		slog.String("order_id", id.OrderID),
		slog.String("min", terms.MinimumAmount.String()),
	)

	out := terms
	return &out, nil
}

// SubmitAmount registers quoteAmount against the order with exactly one
// order-create call. It refuses while another submission is in flight and
// after the order has been created. On a limit error the terms are
// refetched before the (retriable) error is returned, so callers can
// re-seed from Terms().
func (s *OrderSession) SubmitAmount(ctx context.Context, id domain.OrderIdentity, quoteAmount decimal.Decimal) error {
	if !id.HasContext() {
		return domain.ErrNoOrderContext
	}
	if !quoteAmount.IsPositive() {
		return domain.ErrNothingToConfirm
	}

	s.mu.Lock()
	switch s.state {
	case domain.StateConfirming:
		s.mu.Unlock()
		return domain.ErrSubmissionInFlight
	case domain.StateSubmitted:
		s.mu.Unlock()
		return domain.ErrAlreadySubmitted
	}
	s.state = domain.StateConfirming
	s.mu.Unlock()

	s.metrics.BeginSubmit()
	s.metrics.RecordSubmission()
	start := time.Now()
	reply, err := s.api.CreateOrder(ctx, domain.NewCreateRequest(id, quoteAmount))
	s.metrics.EndSubmit()

	record := &domain.Submission{
		OrderID:  id.OrderID,
		MethodID: id.MethodID,
		Amount:   quoteAmount.String(),
		Latency:  time.Since(start).Milliseconds(),
	}

	if err != nil {
		s.metrics.RecordTransportError()
		sessErr := domain.NewTransportError(domain.OpSubmit, err)
		record.Outcome = domain.OutcomeFailed
		record.ErrorKind = sessErr.Kind.String()
		s.journalRecord(ctx, record)
		s.fail(sessErr)
		s.logger.Error("Order submission failed", slog.String("order_id", id.OrderID), slog.Any("error", err))
		return sessErr
	}

	if reply.ErrorCode != "" {
		s.metrics.RecordBusinessError()
		sessErr := domain.NewBusinessError(domain.OpSubmit, reply.ErrorCode)
		record.Outcome = domain.OutcomeRejected
		record.ErrorKind = sessErr.Kind.String()
		s.journalRecord(ctx, record)
		s.logger.Warn("Order submission rejected",
			slog.String("order_id", id.OrderID),
			slog.String("kind", sessErr.Kind.String()),
			slog.String("amount", quoteAmount.String()),
		)

		if !sessErr.IsRetriable() {
			s.fail(sessErr)
			return sessErr
		}

		// Bounds changed under us: refresh terms before handing control back
		s.mu.Lock()
		s.lastErr = sessErr
		s.state = domain.StateLoading
		s.mu.Unlock()

		s.metrics.RecordAutoRefetch()
		if _, ferr := s.fetchWithRecovery(ctx, id); ferr != nil {
			return ferr
		}
		s.mu.Lock()
		s.lastErr = sessErr
		s.mu.Unlock()
		return sessErr
	}

	record.Outcome = domain.OutcomeCreated
	s.journalRecord(ctx, record)

	s.mu.Lock()
	s.state = domain.StateSubmitted
	s.lastErr = nil
	s.mu.Unlock()

	s.metrics.RecordOrderCreated()
	s.logger.Info("Order created", slog.String("order_id", id.OrderID), slog.String("amount", quoteAmount.String()))
	return nil
}

func (s *OrderSession) fail(err *domain.SessionError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.state = domain.StateError
}

func (s *OrderSession) journalRecord(ctx context.Context, rec *domain.Submission) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("Failed to journal submission", slog.String("order_id", rec.OrderID), slog.Any("error", err))
	}
}
