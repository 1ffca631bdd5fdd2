package api

import (
	"swap_calc/internal/domain"
	"swap_calc/internal/service"

	"github.com/leekchan/accounting"
	"github.com/shopspring/decimal"
)

type fieldView struct {
	Currency string        `json:"currency"`
	Value    domain.Amount `json:"value"`
	Display  string        `json:"display,omitempty"`
}

type termsView struct {
	PaymentMethod  string `json:"payment_method"`
	Seller         string `json:"seller"`
	Rating         string `json:"rating"`
	MinimumAmount  string `json:"minimum_amount"`
	MinimumDisplay string `json:"minimum_display"`
}

// sessionView is what the mini-app front end renders.
type sessionView struct {
	Phase        string     `json:"phase"`
	State        string     `json:"state"`
	OrderID      string     `json:"order_id,omitempty"`
	Quote        fieldView  `json:"quote"`
	Target       fieldView  `json:"target"`
	Rate         string     `json:"rate"`
	Terms        *termsView `json:"terms"`
	Notice       string     `json:"notice,omitempty"`
	CanConfirm   bool       `json:"can_confirm"`
	Submitting   bool       `json:"submitting"`
	OrderCreated bool       `json:"order_created"`
	BotURL       string     `json:"bot_url,omitempty"`
}

func newSessionView(v service.View, botURL string) sessionView {
	out := sessionView{
		Phase:        v.Phase.String(),
		State:        v.State.String(),
		OrderID:      v.Identity.OrderID,
		Quote:        newFieldView(v.Pair.Quote, v.Rate.Quote),
		Target:       newFieldView(v.Pair.Target, v.Rate.Target),
		Rate:         v.Rate.Rate.String(),
		Notice:       v.Notice,
		CanConfirm:   v.CanConfirm,
		Submitting:   v.Submitting,
		OrderCreated: v.OrderCreated,
	}
	if v.Terms != nil {
		out.Terms = &termsView{
			PaymentMethod:  v.Terms.PaymentMethodName,
			Seller:         v.Terms.SellerNickname,
			Rating:         v.Terms.SellerRating,
			MinimumAmount:  v.Terms.MinimumAmount.String(),
			MinimumDisplay: formatMoney(v.Terms.MinimumAmount, v.Rate.Quote),
		}
	}
	if v.OrderCreated {
		out.BotURL = botURL
	}
	return out
}

func newFieldView(a domain.Amount, currency string) fieldView {
	f := fieldView{Currency: currency, Value: a}
	if d, ok := a.Decimal(); ok {
		f.Display = formatMoney(d, currency)
	}
	return f
}

// formatMoney renders an amount with thousand separators, e.g. "1,200.00 RUB".
func formatMoney(d decimal.Decimal, currency string) string {
	ac := accounting.Accounting{
		Symbol:         currency,
		Precision:      domain.DisplayPlaces,
		Thousand:       ",",
		Decimal:        ".",
		Format:         "%v %s",
		FormatNegative: "-%v %s",
		FormatZero:     "%v %s",
	}
	return ac.FormatMoneyFloat64(d.InexactFloat64())
}
