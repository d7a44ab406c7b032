// ABOUTME: Message model for the trip conversation timeline
// ABOUTME: Carries wire fields plus locally derived sender/status tags

package wire

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of frame or timeline entry.
type Type string

const (
	TypeChat               Type = "chat"
	TypeSystem             Type = "system"
	TypeWelcome            Type = "welcome"
	TypeBookingAmendment   Type = "booking_amendment"
	TypeTyping             Type = "typing_notification"
	TypeReadReceipt        Type = "read_receipt"
	TypeConversationJoined Type = "conversation_joined"
	TypeUserMessageSent    Type = "user_message_sent"
	TypeAmendmentApproved  Type = "amendment_approved"
	TypeHistory            Type = "history"
	TypeUnknown            Type = "unknown"
)

// Sender is the locally derived origin tag for a timeline entry.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderOther  Sender = "other"
	SenderSystem Sender = "system"
)

// Status tracks delivery of locally authored chat messages.
// Remote messages carry StatusDelivered or no status at all.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
)

// Message is one entry in a conversation timeline. IDs are client-generated
// when the wire frame does not carry one, so local uniqueness always holds.
// For TypeBookingAmendment the Content field is itself a serialized amendment.
type Message struct {
	ID             string    `json:"message_id"`
	Type           Type      `json:"type"`
	From           string    `json:"from,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Content        string    `json:"content,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Sender         Sender    `json:"sender,omitempty"`
	Status         Status    `json:"status,omitempty"`
	AmendmentID    string    `json:"amendment_id,omitempty"`
	IsTyping       bool      `json:"is_typing,omitempty"`

	// HasWireID records whether the frame carried its own message id, as
	// opposed to one generated locally. Read receipts only make sense for
	// ids the counterparty knows about.
	HasWireID bool `json:"-"`
}

// NewID returns a fresh client-side message id.
func NewID() string {
	return uuid.New().String()
}
