package domain

import (
	"context"
)

// OrderAPI defines the two remote operations of the order service.
// A reply with a non-empty ErrorCode is a business outcome, not an error;
// errors are reserved for transport failures.
type OrderAPI interface {
	FetchTerms(ctx context.Context, req TermsRequest) (TermsReply, error)
	CreateOrder(ctx context.Context, req CreateRequest) (CreateReply, error)
}

// HostBridge defines the container hosting the mini-app.
type HostBridge interface {
	// InitData returns the opaque identity token captured at launch.
	InitData() string
	// CloseWindow asks the host to dismiss the mini-app. Best effort.
	CloseWindow() error
}

// SubmissionJournal records every order-create attempt for audit.
type SubmissionJournal interface {
	Record(ctx context.Context, s *Submission) error
}
