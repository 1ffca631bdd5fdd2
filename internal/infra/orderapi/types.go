package orderapi

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const (
	opTermsInit   = "terms-init"
	opOrderCreate = "order-create"

	maxBodyBytes = 1 << 20
)

// createOrderRequest - Internal Struct for JSON Marshaling
type createOrderRequest struct {
	OrderID   string      `json:"order_id"`
	MethodID  string      `json:"method_id"`
	AmountRub json.Number `json:"amount_rub"` // Number literal, not a quoted string
	InitData  string      `json:"init_data"`
}

// envelope is decoded first to find an error code in any reply.
type envelope struct {
	Error json.RawMessage `json:"error"`
}

// termsResponse is the success shape of terms-init.
type termsResponse struct {
	Min      *decimal.Decimal `json:"min"`
	PMName   string           `json:"pm_name"`
	Nickname string           `json:"nickname"`
	Rating   json.RawMessage  `json:"rating"` // Usually "65%", sometimes a bare number
}

func ratingText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// errorCode reads the error field the way a truthiness check would:
// absent, null, false, 0 and "" mean success; a string is the code;
// anything else truthy is an unclassified failure.
func errorCode(raw json.RawMessage) string {
	switch string(raw) {
	case "", "null", "false", "0", `""`:
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return "unknown"
}
