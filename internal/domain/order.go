package domain

import "github.com/shopspring/decimal"

// OrderIdentity is captured once when the mini-app is launched and passed
// unchanged on every remote call.
type OrderIdentity struct {
	OrderID  string
	MethodID string
	InitData string // Opaque host token, never inspected or logged
}

// HasContext reports whether the identity points at a concrete order.
func (id OrderIdentity) HasContext() bool {
	return id.OrderID != "" && id.MethodID != ""
}

// OrderTerms is the seller-set view of an order, replaced wholesale on every
// successful fetch.
type OrderTerms struct {
	PaymentMethodName string          `json:"payment_method"`
	SellerNickname    string          `json:"seller"`
	SellerRating      string          `json:"rating"`
	MinimumAmount     decimal.Decimal `json:"minimum_amount"` // Quote currency
}

// SessionState is the lifecycle of one order session.
type SessionState int

const (
	StateLoading SessionState = iota
	StateReady
	StateConfirming // Submission in flight
	StateSubmitted
	StateError
)

// String returns the string representation of SessionState
func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "LOADING"
	case StateReady:
		return "READY"
	case StateConfirming:
		return "CONFIRMING"
	case StateSubmitted:
		return "SUBMITTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal checks if no further submission may happen in this state.
func (s SessionState) IsTerminal() bool {
	return s == StateSubmitted
}

// Wire shapes of the two remote operations.

// TermsRequest is the payload of the terms-init call.
type TermsRequest struct {
	OrderID  string `json:"order_id"`
	MethodID string `json:"method_id"`
	InitData string `json:"init_data"`
}

// TermsReply is either an error code or a set of terms.
type TermsReply struct {
	ErrorCode string
	Terms     OrderTerms
}

// CreateRequest is the payload of the order-create call.
type CreateRequest struct {
	OrderID  string
	MethodID string
	Amount   decimal.Decimal // Quote currency, sent as amount_rub
	InitData string
}

// CreateReply only carries the presence or absence of an error code.
type CreateReply struct {
	ErrorCode string
}

// NewTermsRequest builds the terms-init payload for an identity.
func NewTermsRequest(id OrderIdentity) TermsRequest {
	return TermsRequest{OrderID: id.OrderID, MethodID: id.MethodID, InitData: id.InitData}
}

// NewCreateRequest builds the order-create payload for an identity.
func NewCreateRequest(id OrderIdentity, amount decimal.Decimal) CreateRequest {
	return CreateRequest{OrderID: id.OrderID, MethodID: id.MethodID, Amount: amount, InitData: id.InitData}
}
