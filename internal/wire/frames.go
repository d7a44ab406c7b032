// ABOUTME: Outbound frame constructors and inbound frame decoding
// ABOUTME: Decode fails closed - malformed frames become unknown system messages

package wire

import (
	"encoding/json"
	"time"
)

// RegisterFrame associates a fresh connection with a user. It is keyed by the
// register flag rather than a type field, which is what the relay expects.
type RegisterFrame struct {
	Register bool   `json:"register"`
	UserID   string `json:"user_id"`
}

// JoinFrame subscribes the registered connection to one conversation.
type JoinFrame struct {
	Type           Type   `json:"type"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

// ChatFrame carries one chat message to the relay.
type ChatFrame struct {
	Type           Type   `json:"type"`
	From           string `json:"from"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	MessageID      string `json:"message_id"`
	Timestamp      string `json:"timestamp"`
}

// TypingFrame is the ephemeral typing indicator.
type TypingFrame struct {
	Type           Type   `json:"type"`
	From           string `json:"from"`
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
	Timestamp      string `json:"timestamp"`
}

// ReadReceiptFrame acknowledges that a message id was read.
type ReadReceiptFrame struct {
	Type           Type   `json:"type"`
	From           string `json:"from"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Timestamp      string `json:"timestamp"`
}

// AmendmentFrame carries amendment proposals and approval notices. The
// content field holds the serialized amendment payload.
type AmendmentFrame struct {
	Type           Type   `json:"type"`
	From           string `json:"from"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	MessageID      string `json:"message_id"`
	AmendmentID    string `json:"amendment_id,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// HistoryRequestFrame asks the relay for prior messages of a conversation.
type HistoryRequestFrame struct {
	Type           Type   `json:"type"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

const historyRequestType Type = "request_history"

// Register builds the registration handshake frame.
func Register(userID string) RegisterFrame {
	return RegisterFrame{Register: true, UserID: userID}
}

// Join builds the conversation subscription frame.
func Join(userID, conversationID string) JoinFrame {
	return JoinFrame{Type: "join_conversation", UserID: userID, ConversationID: conversationID}
}

// Chat builds an outbound chat frame from a timeline message.
func Chat(m *Message) ChatFrame {
	return ChatFrame{
		Type:           TypeChat,
		From:           m.From,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		MessageID:      m.ID,
		Timestamp:      m.Timestamp.UTC().Format(time.RFC3339),
	}
}

// Typing builds a typing indicator frame.
func Typing(from, conversationID string, isTyping bool, at time.Time) TypingFrame {
	return TypingFrame{
		Type:           TypeTyping,
		From:           from,
		ConversationID: conversationID,
		IsTyping:       isTyping,
		Timestamp:      at.UTC().Format(time.RFC3339),
	}
}

// ReadReceipt builds a read acknowledgement for messageID.
func ReadReceipt(from, conversationID, messageID string, at time.Time) ReadReceiptFrame {
	return ReadReceiptFrame{
		Type:           TypeReadReceipt,
		From:           from,
		ConversationID: conversationID,
		MessageID:      messageID,
		Timestamp:      at.UTC().Format(time.RFC3339),
	}
}

// AmendmentNotice builds an outbound amendment-bearing frame from a
// timeline message.
func AmendmentNotice(m *Message) AmendmentFrame {
	return AmendmentFrame{
		Type:           m.Type,
		From:           m.From,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		MessageID:      m.ID,
		AmendmentID:    m.AmendmentID,
		Timestamp:      m.Timestamp.UTC().Format(time.RFC3339),
	}
}

// HistoryRequest builds the prior-message fetch frame.
func HistoryRequest(userID, conversationID string) HistoryRequestFrame {
	return HistoryRequestFrame{Type: historyRequestType, UserID: userID, ConversationID: conversationID}
}

// inboundFrame is the superset of fields any server frame may carry.
type inboundFrame struct {
	Type           Type   `json:"type"`
	From           string `json:"from"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Message        string `json:"message"` // welcome frames put their text here
	MessageID      string `json:"message_id"`
	AmendmentID    string `json:"amendment_id"`
	Timestamp      string `json:"timestamp"`
	IsTyping       bool   `json:"is_typing"`
}

// historyEnvelope is the batched response to a history request.
type historyEnvelope struct {
	Type     Type              `json:"type"`
	Messages []json.RawMessage `json:"messages"`
}

// Decode turns one inbound text frame into a Message. It never fails: frames
// that do not decode become a best-effort wrapper with the raw text as
// content, tagged as a system message, so the timeline still shows something.
func Decode(raw []byte, now time.Time) *Message {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil || f.Type == "" {
		return &Message{
			ID:        NewID(),
			Type:      TypeUnknown,
			Content:   string(raw),
			Sender:    SenderSystem,
			Timestamp: now,
		}
	}

	m := &Message{
		ID:             f.MessageID,
		HasWireID:      f.MessageID != "",
		Type:           f.Type,
		From:           f.From,
		ConversationID: f.ConversationID,
		Content:        f.Content,
		AmendmentID:    f.AmendmentID,
		IsTyping:       f.IsTyping,
		Timestamp:      now,
	}
	if f.Type == TypeWelcome && m.Content == "" {
		m.Content = f.Message
	}
	if m.ID == "" {
		m.ID = NewID()
	}
	if f.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, f.Timestamp); err == nil {
			m.Timestamp = ts
		}
	}
	return m
}

// DecodeHistory reports whether raw is a history batch and, if so, decodes
// each contained message. Entries that fail to decode become unknown
// wrappers, same as live frames.
func DecodeHistory(raw []byte, now time.Time) ([]*Message, bool) {
	var env historyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type != TypeHistory {
		return nil, false
	}
	batch := make([]*Message, 0, len(env.Messages))
	for _, entry := range env.Messages {
		batch = append(batch, Decode(entry, now))
	}
	return batch, true
}
