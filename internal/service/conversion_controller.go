package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"swap_calc/internal/domain"
	"swap_calc/internal/infra"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
)

// orderSession is the part of OrderSession the controller drives.
type orderSession interface {
	FetchTerms(ctx context.Context, id domain.OrderIdentity) (*domain.OrderTerms, error)
	SubmitAmount(ctx context.Context, id domain.OrderIdentity, quoteAmount decimal.Decimal) error
	State() domain.SessionState
	Terms() *domain.OrderTerms
	Notice() string
}

// Phase is the controller's view of the confirmation protocol.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConfirming
	PhaseSubmitted
)

// String returns the string representation of Phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseConfirming:
		return "CONFIRMING"
	case PhaseSubmitted:
		return "SUBMITTED"
	default:
		return "UNKNOWN"
	}
}

// ControllerDeps wires a ConversionController.
type ControllerDeps struct {
	Session    orderSession
	Rate       domain.ExchangeRate
	Host       domain.HostBridge // May be nil; closing is then only logged
	Clock      clock.Clock
	CloseDelay time.Duration
	Metrics    *infra.Metrics
	Logger     *slog.Logger
}

// ConversionController owns the two amount fields and sequences the
// confirm and cancel protocol on top of an OrderSession.
type ConversionController struct {
	session    orderSession
	rate       domain.ExchangeRate
	host       domain.HostBridge
	clock      clock.Clock
	closeDelay time.Duration
	metrics    *infra.Metrics
	logger     *slog.Logger

	mu         sync.Mutex
	identity   domain.OrderIdentity
	started    bool
	phase      Phase
	pair       domain.AmountPair
	notice     string
	submitting bool
	epoch      uint64 // Bumped by every user edit and cancel
	closeTimer *clock.Timer
}

// NewConversionController creates an idle controller with an empty pair.
func NewConversionController(deps ControllerDeps) *ConversionController {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = infra.GlobalMetrics
	}
	if deps.CloseDelay <= 0 {
		deps.CloseDelay = 5 * time.Second
	}
	return &ConversionController{
		session:    deps.Session,
		rate:       deps.Rate,
		host:       deps.Host,
		clock:      deps.Clock,
		closeDelay: deps.CloseDelay,
		metrics:    deps.Metrics,
		logger:     infra.Module(deps.Logger, "controller"),
		pair:       domain.EmptyPair(),
	}
}

// Start captures the launch identity and loads the order terms. It may be
// called once; init data missing from id is taken from the host.
func (c *ConversionController) Start(ctx context.Context, id domain.OrderIdentity) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return domain.ErrSessionStarted
	}
	c.started = true
	if id.InitData == "" && c.host != nil {
		id.InitData = c.host.InitData()
	}
	c.identity = id
	c.mu.Unlock()

	c.logger.Info("Session started",
		slog.String("order_id", id.OrderID),
		slog.String("method_id", id.MethodID),
		slog.Int("init_data_len", len(id.InitData)),
	)
	return c.load(ctx)
}

// Reload refetches the terms after a failed load. The pair is re-seeded
// unless the user has edited it meanwhile.
func (c *ConversionController) Reload(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return domain.ErrNoOrderContext
	}
	if c.phase == PhaseSubmitted {
		c.mu.Unlock()
		return domain.ErrAlreadySubmitted
	}
	c.mu.Unlock()
	return c.load(ctx)
}

func (c *ConversionController) load(ctx context.Context) error {
	c.mu.Lock()
	id := c.identity
	epoch := c.epoch
	c.mu.Unlock()

	terms, err := c.session.FetchTerms(ctx, id)
	if errors.Is(err, errStaleFetch) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.notice = domain.NoticeOf(err)
		return err
	}
	if terms == nil {
		// No order context: stay loading
		return nil
	}
	c.notice = ""
	if c.epoch == epoch {
		c.pair = domain.SeedPair(terms.MinimumAmount, c.rate)
	}
	return nil
}

// EditQuote applies a keystroke in the quote field.
func (c *ConversionController) EditQuote(raw string) domain.AmountPair {
	return c.edit(func(p domain.AmountPair) domain.AmountPair {
		return p.WithQuote(raw, c.rate)
	})
}

// EditTarget applies a keystroke in the target field.
func (c *ConversionController) EditTarget(raw string) domain.AmountPair {
	return c.edit(func(p domain.AmountPair) domain.AmountPair {
		return p.WithTarget(raw, c.rate)
	})
}

func (c *ConversionController) edit(apply func(domain.AmountPair) domain.AmountPair) domain.AmountPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseSubmitted {
		return c.pair
	}
	c.pair = apply(c.pair)
	c.epoch++
	c.notice = ""
	return c.pair
}

// CanConfirm is the UI gate for the confirm action.
func (c *ConversionController) CanConfirm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canConfirmLocked()
}

func (c *ConversionController) canConfirmLocked() bool {
	return c.pair.CanConfirm() && !c.submitting && c.phase != PhaseSubmitted
}

// RequestConfirmation opens the confirmation step. No request is sent.
func (c *ConversionController) RequestConfirmation() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.phase == PhaseSubmitted:
		return domain.ErrAlreadySubmitted
	case c.submitting:
		return domain.ErrSubmissionInFlight
	case !c.pair.CanConfirm():
		return domain.ErrNothingToConfirm
	}
	c.phase = PhaseConfirming
	return nil
}

// Confirm submits the quote amount. After the order is created it is a
// no-op. A limit rejection re-seeds the pair from the refreshed terms and
// reopens the idle view; any other failure keeps the amounts.
func (c *ConversionController) Confirm(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.phase == PhaseSubmitted:
		c.mu.Unlock()
		return nil
	case c.submitting:
		c.mu.Unlock()
		return domain.ErrSubmissionInFlight
	case c.phase != PhaseConfirming:
		c.mu.Unlock()
		return domain.ErrNoConfirmation
	}
	quote, ok := c.pair.Quote.Decimal()
	if !ok || !quote.IsPositive() {
		c.phase = PhaseIdle
		c.notice = domain.NoticeOf(domain.ErrNothingToConfirm)
		c.mu.Unlock()
		return domain.ErrNothingToConfirm
	}
	c.submitting = true
	id := c.identity
	epoch := c.epoch
	c.mu.Unlock()

	err := c.session.SubmitAmount(ctx, id, quote)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false

	if err == nil {
		c.phase = PhaseSubmitted
		c.notice = ""
		c.closeTimer = c.clock.AfterFunc(c.closeDelay, c.closeHost)
		c.logger.Info("Order created, closing soon", slog.String("order_id", id.OrderID), slog.Duration("delay", c.closeDelay))
		return nil
	}

	c.phase = PhaseIdle
	c.notice = domain.NoticeOf(err)

	if domain.IsRetriable(err) {
		if terms := c.session.Terms(); terms != nil && c.epoch == epoch {
			c.pair = domain.SeedPair(terms.MinimumAmount, c.rate)
		}
		c.logger.Info("Amount re-seeded after limit rejection", slog.String("order_id", id.OrderID), slog.String("quote", c.pair.Quote.String()))
		return err
	}

	c.logger.Warn("Confirmation failed", slog.String("order_id", id.OrderID), slog.Any("error", err))
	return err
}

// Cancel closes the confirmation step and clears both fields.
func (c *ConversionController) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pair = domain.EmptyPair()
	c.epoch++
	c.notice = ""
	if c.phase == PhaseConfirming {
		c.phase = PhaseIdle
	}
}

// closeHost runs once, on the clock, after the order was created.
func (c *ConversionController) closeHost() {
	if c.host == nil {
		c.metrics.RecordHostCloseFailure()
		c.logger.Error("Cannot close window", slog.Any("error", domain.ErrHostUnavailable))
		return
	}
	if err := c.host.CloseWindow(); err != nil {
		c.metrics.RecordHostCloseFailure()
		c.logger.Error("Cannot close window", slog.Any("error", err))
		return
	}
	c.logger.Info("Host window close requested")
}

// Shutdown stops a pending close. Only used at process exit.
func (c *ConversionController) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeTimer != nil {
		c.closeTimer.Stop()
	}
}

// View is a consistent snapshot for the display layer.
type View struct {
	Phase        Phase
	State        domain.SessionState
	Identity     domain.OrderIdentity
	Pair         domain.AmountPair
	Terms        *domain.OrderTerms
	Rate         domain.ExchangeRate
	Notice       string
	CanConfirm   bool
	Submitting   bool
	OrderCreated bool
}

// Snapshot returns the current view.
func (c *ConversionController) Snapshot() View {
	state := c.session.State()
	terms := c.session.Terms()
	sessNotice := c.session.Notice()

	c.mu.Lock()
	defer c.mu.Unlock()
	notice := c.notice
	if notice == "" && state == domain.StateError {
		notice = sessNotice
	}
	return View{
		Phase:        c.phase,
		State:        state,
		Identity:     c.identity,
		Pair:         c.pair,
		Terms:        terms,
		Rate:         c.rate,
		Notice:       notice,
		CanConfirm:   c.canConfirmLocked(),
		Submitting:   c.submitting,
		OrderCreated: c.phase == PhaseSubmitted,
	}
}
