package types

// ResolvedAddress is the outcome of one successful WAN address lookup.
type ResolvedAddress struct {
	Provider string `json:"provider" yaml:"provider"`
	IP       string `json:"ip" yaml:"ip"`
}

// APIPayload is the body posted to the API sink.
type APIPayload struct {
	IPAddress *string `json:"ip_address"`
	Msg       *string `json:"msg"`
}

// WebhookPayload is the body posted to the webhook sink.
type WebhookPayload struct {
	Content string `json:"content"`
}
