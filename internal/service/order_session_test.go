package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"swap_calc/internal/domain"
	"swap_calc/internal/infra"

	"github.com/shopspring/decimal"
)

var testIdentity = domain.OrderIdentity{OrderID: "42", MethodID: "7", InitData: "opaque"}

// fakeAPI replays scripted replies in order; the last one repeats.
type fakeAPI struct {
	mu           sync.Mutex
	termsReplies []termsResult
	createReply  domain.CreateReply
	createErr    error
	termsCalls   int
	createCalls  int
	lastCreate   domain.CreateRequest
}

type termsResult struct {
	reply domain.TermsReply
	err   error
}

func termsOK(min int64) termsResult {
	return termsResult{reply: domain.TermsReply{Terms: domain.OrderTerms{
		PaymentMethodName: "SBP",
		SellerNickname:    "seller",
		SellerRating:      "98",
		MinimumAmount:     decimal.NewFromInt(min),
	}}}
}

func termsCode(code string) termsResult {
	return termsResult{reply: domain.TermsReply{ErrorCode: code}}
}

func (f *fakeAPI) FetchTerms(ctx context.Context, req domain.TermsRequest) (domain.TermsReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.termsCalls
	if idx >= len(f.termsReplies) {
		idx = len(f.termsReplies) - 1
	}
	f.termsCalls++
	r := f.termsReplies[idx]
	return r.reply, r.err
}

func (f *fakeAPI) CreateOrder(ctx context.Context, req domain.CreateRequest) (domain.CreateReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastCreate = req
	return f.createReply, f.createErr
}

func (f *fakeAPI) calls() (terms, create int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.termsCalls, f.createCalls
}

type memJournal struct {
	mu      sync.Mutex
	records []domain.Submission
	err     error
}

func (j *memJournal) Record(ctx context.Context, s *domain.Submission) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.records = append(j.records, *s)
	return nil
}

func newTestSession(api domain.OrderAPI, journal domain.SubmissionJournal) *OrderSession {
	return NewOrderSession(SessionDeps{
		API:               api,
		Journal:           journal,
		Metrics:           &infra.Metrics{},
		MaxLimitRefetches: 3,
	})
}

func TestOrderSession_FetchTerms(t *testing.T) {
	api := &fakeAPI{termsReplies: []termsResult{termsOK(1000)}}
	s := newTestSession(api, nil)

	terms, err := s.FetchTerms(context.Background(), testIdentity)
	if err != nil {
		t.Fatalf("FetchTerms failed: %v", err)
	}
	if !terms.MinimumAmount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected min 1000, got %s", terms.MinimumAmount)
	}
	if s.State() != domain.StateReady {
		t.Errorf("Expected READY, got %s", s.State())
	}
	if s.Notice() != "" {
		t.Errorf("Expected no notice, got %q", s.Notice())
	}
}

func TestOrderSession_FetchTerms_NoContext(t *testing.T) {
	api := &fakeAPI{termsReplies: []termsResult{termsOK(1000)}}
	s := newTestSession(api, nil)

	terms, err := s.FetchTerms(context.Background(), domain.OrderIdentity{OrderID: "42"})
	if terms != nil || err != nil {
		t.Fatalf("Expected (nil, nil), got (%v, %v)", terms, err)
	}
	if n, _ := api.calls(); n != 0 {
		t.Errorf("Expected no request, got %d", n)
	}
	if s.State() != domain.StateLoading {
		t.Errorf("Expected LOADING, got %s", s.State())
	}
}

func TestOrderSession_FetchTerms_Errors(t *testing.T) {
	tests := []struct {
		name      string
		reply     termsResult
		kind      domain.ErrorKind
		wantCalls int
	}{
		{"order not exist", termsCode(domain.CodeOrderNotExist), domain.KindOrderNotExist, 1},
		{"pending payment", termsCode(domain.CodeActualPaymentDetected), domain.KindPendingPayment, 1},
		{"unknown code", termsCode("teapot"), domain.KindUnknown, 1},
		{"transport", termsResult{err: domain.NewNetworkError("terms-init", errors.New("dial"))}, domain.KindTransport, 1},
		{"limit exhausts refetches", termsCode(domain.CodeLimitError), domain.KindLimit, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{termsReplies: []termsResult{tt.reply}}
			s := newTestSession(api, nil)

			_, err := s.FetchTerms(context.Background(), testIdentity)
			var se *domain.SessionError
			if !errors.As(err, &se) {
				t.Fatalf("Expected SessionError, got %v", err)
			}
			if se.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", se.Kind, tt.kind)
			}
			if n, _ := api.calls(); n != tt.wantCalls {
				t.Errorf("Expected %d fetches, got %d", tt.wantCalls, n)
			}
			if s.State() != domain.StateError {
				t.Errorf("Expected ERROR, got %s", s.State())
			}
			if s.Notice() == "" {
				t.Error("Expected a notice")
			}
		})
	}
}

func TestOrderSession_FetchTerms_LimitRecovers(t *testing.T) {
	api := &fakeAPI{termsReplies: []termsResult{termsCode(domain.CodeLimitError), termsOK(1500)}}
	metrics := &infra.Metrics{}
	s := NewOrderSession(SessionDeps{API: api, Metrics: metrics})

	terms, err := s.FetchTerms(context.Background(), testIdentity)
	if err != nil {
		t.Fatalf("Expected recovery, got %v", err)
	}
	if !terms.MinimumAmount.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Expected refreshed min 1500, got %s", terms.MinimumAmount)
	}
	if n, _ := api.calls(); n != 2 {
		t.Errorf("Expected 2 fetches, got %d", n)
	}
	if metrics.Snapshot().AutoRefetches != 1 {
		t.Errorf("Expected 1 auto refetch, got %d", metrics.Snapshot().AutoRefetches)
	}
}

func TestOrderSession_FetchTerms_ReplacesTerms(t *testing.T) {
	api := &fakeAPI{termsReplies: []termsResult{
		termsOK(1000),
		{reply: domain.TermsReply{Terms: domain.OrderTerms{MinimumAmount: decimal.NewFromInt(2000)}}},
	}}
	s := newTestSession(api, nil)
	ctx := context.Background()

	if _, err := s.FetchTerms(ctx, testIdentity); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FetchTerms(ctx, testIdentity); err != nil {
		t.Fatal(err)
	}

	terms := s.Terms()
	if terms.PaymentMethodName != "" || terms.SellerNickname != "" {
		t.Errorf("Expected wholesale replacement, got %+v", terms)
	}
	if !terms.MinimumAmount.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected min 2000, got %s", terms.MinimumAmount)
	}
}

func TestOrderSession_SubmitAmount_Success(t *testing.T) {
	api := &fakeAPI{termsReplies: []termsResult{termsOK(1000)}}
	journal := &memJournal{}
	s := newTestSession(api, journal)
	ctx := context.Background()

	if err := s.SubmitAmount(ctx, testIdentity, decimal.RequireFromString("1250.5")); err != nil {
		t.Fatalf("SubmitAmount failed: %v", err)
	}
	if s.State() != domain.StateSubmitted {
		t.Errorf("Expected SUBMITTED, got %s", s.State())
	}
	if api.lastCreate.OrderID != "42" || api.lastCreate.InitData != "opaque" {
		t.Errorf("Identity not passed through: %+v", api.lastCreate)
	}
	if len(journal.records) != 1 || journal.records[0].Outcome != domain.OutcomeCreated {
		t.Errorf("Expected one CREATED record, got %+v", journal.records)
	}

	if err := s.SubmitAmount(ctx, testIdentity, decimal.NewFromInt(1)); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Errorf("Expected ErrAlreadySubmitted, got %v", err)
	}
	if _, n := api.calls(); n != 1 {
		t.Errorf("Expected exactly 1 create call, got %d", n)
	}
}

func TestOrderSession_SubmitAmount_Preconditions(t *testing.T) {
	api := &fakeAPI{termsReplies: []termsResult{termsOK(1000)}}
	s := newTestSession(api, nil)
	ctx := context.Background()

	if err := s.SubmitAmount(ctx, domain.OrderIdentity{}, decimal.NewFromInt(1)); !errors.Is(err, domain.ErrNoOrderContext) {
		t.Errorf("Expected ErrNoOrderContext, got %v", err)
	}
	if err := s.SubmitAmount(ctx, testIdentity, decimal.Zero); !errors.Is(err, domain.ErrNothingToConfirm) {
		t.Errorf("Expected ErrNothingToConfirm, got %v", err)
	}
	if _, n := api.calls(); n != 0 {
		t.Errorf("Expected no create call, got %d", n)
	}
}

func TestOrderSession_SubmitAmount_LimitRefetchesOnce(t *testing.T) {
	api := &fakeAPI{
		termsReplies: []termsResult{termsOK(1500)},
		createReply:  domain.CreateReply{ErrorCode: domain.CodeLimitError},
	}
	journal := &memJournal{}
	s := newTestSession(api, journal)

	err := s.SubmitAmount(context.Background(), testIdentity, decimal.NewFromInt(10))
	if !domain.IsRetriable(err) {
		t.Fatalf("Expected retriable error, got %v", err)
	}
	terms, create := api.calls()
	if terms != 1 || create != 1 {
		t.Errorf("Expected 1 fetch and 1 create, got %d and %d", terms, create)
	}
	if s.State() != domain.StateReady {
		t.Errorf("Expected READY after refetch, got %s", s.State())
	}
	if !s.Terms().MinimumAmount.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Expected refreshed terms, got %+v", s.Terms())
	}
	if len(journal.records) != 1 || journal.records[0].Outcome != domain.OutcomeRejected {
		t.Errorf("Expected one REJECTED record, got %+v", journal.records)
	}
}

func TestOrderSession_SubmitAmount_Unrecoverable(t *testing.T) {
	tests := []struct {
		name    string
		reply   domain.CreateReply
		err     error
		kind    domain.ErrorKind
		outcome string
	}{
		{"order not exist", domain.CreateReply{ErrorCode: domain.CodeOrderNotExist}, nil, domain.KindOrderNotExist, domain.OutcomeRejected},
		{"pending payment", domain.CreateReply{ErrorCode: domain.CodeActualPaymentDetected}, nil, domain.KindPendingPayment, domain.OutcomeRejected},
		{"transport", domain.CreateReply{}, domain.NewNetworkError("order-create", errors.New("reset")), domain.KindTransport, domain.OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{termsReplies: []termsResult{termsOK(1000)}, createReply: tt.reply, createErr: tt.err}
			journal := &memJournal{}
			s := newTestSession(api, journal)

			err := s.SubmitAmount(context.Background(), testIdentity, decimal.NewFromInt(1000))
			var se *domain.SessionError
			if !errors.As(err, &se) || se.Kind != tt.kind {
				t.Fatalf("Expected %s SessionError, got %v", tt.kind, err)
			}
			if se.IsRetriable() {
				t.Error("Expected unrecoverable error")
			}
			terms, create := api.calls()
			if terms != 0 || create != 1 {
				t.Errorf("Expected no refetch and 1 create, got %d and %d", terms, create)
			}
			if s.State() != domain.StateError {
				t.Errorf("Expected ERROR, got %s", s.State())
			}
			if journal.records[0].Outcome != tt.outcome {
				t.Errorf("Outcome = %s, want %s", journal.records[0].Outcome, tt.outcome)
			}

			// The user may retry manually after a failure
			api.createReply, api.createErr = domain.CreateReply{}, nil
			if err := s.SubmitAmount(context.Background(), testIdentity, decimal.NewFromInt(1000)); err != nil {
				t.Errorf("Manual retry failed: %v", err)
			}
		})
	}
}

func TestOrderSession_JournalFailureIsNotFatal(t *testing.T) {
	api := &fakeAPI{termsReplies: []termsResult{termsOK(1000)}}
	s := newTestSession(api, &memJournal{err: errors.New("disk full")})

	if err := s.SubmitAmount(context.Background(), testIdentity, decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("Journal failure leaked: %v", err)
	}
	if s.State() != domain.StateSubmitted {
		t.Errorf("Expected SUBMITTED, got %s", s.State())
	}
}

// blockingAPI holds the first terms call until released.
type blockingAPI struct {
	fakeAPI
	first   chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingAPI) FetchTerms(ctx context.Context, req domain.TermsRequest) (domain.TermsReply, error) {
	blocked := false
	b.once.Do(func() { blocked = true })
	if blocked {
		close(b.first)
		<-b.release
		return termsOK(1000).reply, nil
	}
	return termsOK(3000).reply, nil
}

func TestOrderSession_StaleFetchDiscarded(t *testing.T) {
	api := &blockingAPI{first: make(chan struct{}), release: make(chan struct{})}
	s := newTestSession(api, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.FetchTerms(ctx, testIdentity)
		done <- err
	}()
	<-api.first

	if _, err := s.FetchTerms(ctx, testIdentity); err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}
	close(api.release)

	if err := <-done; !errors.Is(err, errStaleFetch) {
		t.Errorf("Expected stale fetch error, got %v", err)
	}
	if !s.Terms().MinimumAmount.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("Stale result overwrote newer terms: %s", s.Terms().MinimumAmount)
	}
}
