package domain

import (
	"time"
)

// Submission outcome values stored in the journal.
const (
	OutcomeCreated  = "CREATED"
	OutcomeRejected = "REJECTED"
	OutcomeFailed   = "FAILED" // Transport failure, unknown server state
)

// Submission is one order-create attempt as written to the audit journal.
type Submission struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	OrderID   string    `json:"order_id" gorm:"index"`
	MethodID  string    `json:"method_id"`
	Amount    string    `json:"amount"` // Quote currency, decimal text
	Outcome   string    `json:"outcome" gorm:"index"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Latency   int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}
