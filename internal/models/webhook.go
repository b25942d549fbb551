package models

// Webhook payload shapes for WhatsApp Cloud API delivery batches. Only the
// fields the pipeline reads are declared; everything else is ignored during
// decoding.

// WebhookPayload is the top-level body of a POST /webhook delivery.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry is one account-level entry in a delivery batch.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange carries one change notification inside an entry.
type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue holds the messages and statuses of one change.
type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         WebhookMetadata  `json:"metadata"`
	Messages         []InboundMessage `json:"messages"`
	Statuses         []InboundStatus  `json:"statuses"`
}

// WebhookMetadata identifies the receiving business number.
type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// InboundMessage is one raw message unit as delivered by the platform.
type InboundMessage struct {
	ID          string              `json:"id"`
	From        string              `json:"from"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *InboundText        `json:"text,omitempty"`
	Interactive *InboundInteractive `json:"interactive,omitempty"`
}

// InboundText is the body of a text message.
type InboundText struct {
	Body string `json:"body"`
}

// InboundInteractive is the reply payload of an interactive message. Exactly
// one of ButtonReply or ListReply is set, matching Type.
type InboundInteractive struct {
	Type        string        `json:"type"`
	ButtonReply *InboundReply `json:"button_reply,omitempty"`
	ListReply   *InboundReply `json:"list_reply,omitempty"`
}

// InboundReply identifies which menu option the sender tapped.
type InboundReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// InboundStatus is a delivery receipt. The pipeline ignores these.
type InboundStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}
