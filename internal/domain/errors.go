package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a transport failure talking to the order service.
type NetworkError struct {
	Op        string // Operation that failed (e.g., "terms-init", "order-create")
	Err       error  // Underlying error
	Retriable bool   // Whether the caller may try again by itself
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a transport error the user must retry manually.
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Server-reported business error codes.
const (
	CodeLimitError            = "limit_error"
	CodeOrderNotExist         = "order_not_exist"
	CodeActualPaymentDetected = "actual_payment_detected"
)

// ErrorKind is the recovery class of a failed remote call.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindLimit
	KindOrderNotExist
	KindPendingPayment
	KindTransport
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindLimit:
		return "limit"
	case KindOrderNotExist:
		return "order_not_exist"
	case KindPendingPayment:
		return "pending_payment"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// ClassifyCode maps a server error code onto its recovery class.
func ClassifyCode(code string) ErrorKind {
	switch code {
	case CodeLimitError:
		return KindLimit
	case CodeOrderNotExist:
		return KindOrderNotExist
	case CodeActualPaymentDetected:
		return KindPendingPayment
	default:
		return KindUnknown
	}
}

// SessionError is the classified outcome of a failed terms fetch or order
// submission. Only the limit class is recovered automatically.
type SessionError struct {
	Op   string // "fetch" or "submit"
	Kind ErrorKind
	Code string // Raw server code, empty for transport failures
	Err  error  // Underlying transport error, if any
}

// NewBusinessError classifies a server-reported code.
func NewBusinessError(op, code string) *SessionError {
	return &SessionError{Op: op, Kind: ClassifyCode(code), Code: code}
}

// NewTransportError wraps a failed request.
func NewTransportError(op string, err error) *SessionError {
	return &SessionError{Op: op, Kind: KindTransport, Err: err}
}

func (e *SessionError) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Code != "" && e.Kind == KindUnknown {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SessionError) IsRetriable() bool {
	return e.Kind == KindLimit
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Notice is the short text shown to the user. It never contains raw codes.
func (e *SessionError) Notice() string {
	switch e.Kind {
	case KindLimit:
		return "Invalid amount. Refreshing order data..."
	case KindOrderNotExist:
		return "The order does not exist or has been closed."
	case KindPendingPayment:
		return "You have an unfinished payment. Complete the current deal first."
	case KindTransport:
		if e.Op == OpSubmit {
			return "Failed to send the amount. Please try again later."
		}
		return "Failed to load order data. Please try again later."
	default:
		return "An unknown error occurred."
	}
}

// Operation names used in SessionError.Op.
const (
	OpFetch  = "fetch"
	OpSubmit = "submit"
)

// NoticeOf returns the user-facing text for any error.
func NoticeOf(err error) string {
	if err == nil {
		return ""
	}
	var se *SessionError
	if errors.As(err, &se) {
		return se.Notice()
	}
	switch {
	case errors.Is(err, ErrSubmissionInFlight):
		return "The amount is already being sent."
	case errors.Is(err, ErrAlreadySubmitted):
		return "The order has already been created."
	case errors.Is(err, ErrNothingToConfirm):
		return "Enter an amount greater than zero."
	case errors.Is(err, ErrNoConfirmation):
		return "Review the amounts before confirming."
	}
	return "An unknown error occurred."
}

var (
	// ErrNoOrderContext is returned when the launch parameters lack an order or method id.
	ErrNoOrderContext = errors.New("no order context")

	// ErrSubmissionInFlight is returned when a confirmation arrives while one is still being sent.
	ErrSubmissionInFlight = errors.New("submission already in flight")

	// ErrAlreadySubmitted is returned once the order has been created.
	ErrAlreadySubmitted = errors.New("order already submitted")

	// ErrNothingToConfirm is returned when neither amount is positive.
	ErrNothingToConfirm = errors.New("nothing to confirm")

	// ErrNoConfirmation is returned when confirm is called without an open confirmation step.
	ErrNoConfirmation = errors.New("confirmation step is not open")

	// ErrHostUnavailable is returned when the hosting container cannot be reached.
	ErrHostUnavailable = errors.New("host bridge unavailable")

	// ErrSessionStarted is returned when a session is started twice.
	ErrSessionStarted = errors.New("session already started")
)
