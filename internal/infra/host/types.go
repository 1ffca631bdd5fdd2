package host

// Message types exchanged with the hosting container.
const (
	msgLaunch = "launch"
	msgClose  = "close"
)

// inboundMessage is anything the host sends; only launch is acted upon.
type inboundMessage struct {
	Type     string `json:"type"`
	OrderID  string `json:"order_id"`
	MethodID string `json:"method_id"`
	InitData string `json:"init_data"`
}

// closeRequest asks the host to dismiss the mini-app window.
type closeRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}
