package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNetworkError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("transport error is not retriable", func(t *testing.T) {
		err := NewNetworkError("terms-init", baseErr)

		if err.IsRetriable() {
			t.Error("Expected transport error to require a manual retry")
		}

		if err.Error() != "terms-init: connection refused" {
			t.Errorf("Error message = %q, want %q", err.Error(), "terms-init: connection refused")
		}

		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		limit := NewBusinessError(OpSubmit, CodeLimitError)
		gone := NewBusinessError(OpSubmit, CodeOrderNotExist)
		plain := errors.New("plain error")

		if !IsRetriable(fmt.Errorf("wrapped: %w", limit)) {
			t.Error("IsRetriable should return true for wrapped limit error")
		}
		if IsRetriable(gone) {
			t.Error("IsRetriable should return false for order_not_exist")
		}
		if IsRetriable(plain) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "exchange.rate", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [exchange.rate]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}

func TestClassifyCode(t *testing.T) {
	tests := []struct {
		code      string
		want      ErrorKind
		retriable bool
	}{
		{CodeLimitError, KindLimit, true},
		{CodeOrderNotExist, KindOrderNotExist, false},
		{CodeActualPaymentDetected, KindPendingPayment, false},
		{"rate_limited", KindUnknown, false},
		{"", KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := NewBusinessError(OpFetch, tt.code)
			if err.Kind != tt.want {
				t.Errorf("ClassifyCode(%q) = %v, want %v", tt.code, err.Kind, tt.want)
			}
			if err.IsRetriable() != tt.retriable {
				t.Errorf("IsRetriable() = %v, want %v", err.IsRetriable(), tt.retriable)
			}
		})
	}
}

func TestSessionError_NoticeHidesCodes(t *testing.T) {
	errs := []*SessionError{
		NewBusinessError(OpSubmit, CodeLimitError),
		NewBusinessError(OpSubmit, CodeOrderNotExist),
		NewBusinessError(OpSubmit, CodeActualPaymentDetected),
		NewBusinessError(OpSubmit, "weird_internal_code"),
		NewTransportError(OpFetch, errors.New("dial tcp: i/o timeout")),
	}

	for _, err := range errs {
		notice := err.Notice()
		if notice == "" {
			t.Errorf("%v: empty notice", err)
		}
		if strings.Contains(notice, "_") || strings.Contains(notice, "dial") {
			t.Errorf("%v: notice leaks internals: %q", err, notice)
		}
	}
}

func TestSessionError_TransportNoticeDependsOnOp(t *testing.T) {
	fetch := NewTransportError(OpFetch, errors.New("x")).Notice()
	submit := NewTransportError(OpSubmit, errors.New("x")).Notice()
	if fetch == submit {
		t.Errorf("fetch and submit transport notices should differ, both %q", fetch)
	}
}

func TestNoticeOf(t *testing.T) {
	if NoticeOf(nil) != "" {
		t.Error("nil error should have no notice")
	}
	if NoticeOf(ErrSubmissionInFlight) == NoticeOf(errors.New("other")) {
		t.Error("in-flight notice should be specific")
	}
	limit := NewBusinessError(OpSubmit, CodeLimitError)
	if got := NoticeOf(fmt.Errorf("submit: %w", limit)); got != limit.Notice() {
		t.Errorf("NoticeOf(wrapped) = %q, want %q", got, limit.Notice())
	}
}
