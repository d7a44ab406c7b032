// ABOUTME: Per-conversation controller - timeline, history merge, delivery status
// ABOUTME: Translates channel events into timeline mutations and republishes them

package session

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wayline/tripchat/internal/channel"
	"github.com/wayline/tripchat/internal/dedupe"
	"github.com/wayline/tripchat/internal/wire"
)

const (
	defaultTypingQuiet      = 2 * time.Second
	defaultReadReceiptDelay = time.Second

	seenTTL     = 10 * time.Minute
	seenMaxSize = 4096
)

// Transport is what the session needs from the realtime channel.
type Transport interface {
	Connect(ctx context.Context, userID, conversationID string) error
	Disconnect()
	Send(frame any) bool
	Connected() bool
	Subscribe(ctx context.Context) (<-chan channel.Event, string)
}

// Options tunes session timers. Zero values get defaults.
type Options struct {
	TypingQuiet      time.Duration
	ReadReceiptDelay time.Duration
	Logger           *slog.Logger
}

// Session owns the in-memory timeline of one conversation. It is the only
// writer of the timeline; the amendment coordinator reads and writes back
// exclusively through UpdateMessage.
type Session struct {
	transport    Transport
	logger       *slog.Logger
	events       *channel.Broadcaster
	seen         *dedupe.Cache
	typingQuiet  time.Duration
	receiptDelay time.Duration

	mu             sync.Mutex
	userID         string
	conversationID string
	timeline       []*wire.Message
	index          map[string]int
	loadingHistory bool
	connected      bool
	typingTimer    *time.Timer
	runCancel      context.CancelFunc
}

// New creates a session over the given transport.
func New(transport Transport, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TypingQuiet <= 0 {
		opts.TypingQuiet = defaultTypingQuiet
	}
	if opts.ReadReceiptDelay <= 0 {
		opts.ReadReceiptDelay = defaultReadReceiptDelay
	}
	return &Session{
		transport:    transport,
		logger:       logger.With("component", "session"),
		events:       channel.NewBroadcaster(logger),
		seen:         dedupe.New(seenTTL, seenMaxSize),
		typingQuiet:  opts.TypingQuiet,
		receiptDelay: opts.ReadReceiptDelay,
		index:        make(map[string]int),
	}
}

// SetUser configures the local user id. Required before Connect.
func (s *Session) SetUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

// SetConversation configures the conversation id. Required before Connect.
func (s *Session) SetConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
}

// UserID returns the configured local user id.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Events returns the processed event stream. The subscription ends when ctx
// is cancelled.
func (s *Session) Events(ctx context.Context) (<-chan channel.Event, string) {
	return s.events.Subscribe(ctx)
}

// Connected reports whether the underlying channel is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// IsLoadingHistory reports whether a history request is pending.
func (s *Session) IsLoadingHistory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingHistory
}

// Connect joins the conversation. Both ids must be configured first. The
// session starts consuming channel events before dialing so nothing is
// missed between handshake and subscription.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	userID, conversationID := s.userID, s.conversationID
	if s.runCancel != nil {
		s.runCancel()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	s.mu.Unlock()

	events, _ := s.transport.Subscribe(runCtx)
	go s.run(events)

	return s.transport.Connect(ctx, userID, conversationID)
}

// Disconnect tears the session down: listeners detach first so in-flight
// results are ignored, then the socket closes. The timeline is preserved.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.connected = false
	s.loadingHistory = false
	s.mu.Unlock()

	s.transport.Disconnect()
}

// Close releases the session's resources.
func (s *Session) Close() {
	s.Disconnect()
	s.events.Close()
	s.seen.Close()
}

// RequestHistory asks the relay for prior messages. Returns false when the
// channel is closed or the session is not configured.
func (s *Session) RequestHistory() bool {
	s.mu.Lock()
	userID, conversationID := s.userID, s.conversationID
	s.mu.Unlock()
	if userID == "" || conversationID == "" {
		return false
	}

	ok := s.transport.Send(wire.HistoryRequest(userID, conversationID))
	if ok {
		s.mu.Lock()
		s.loadingHistory = true
		s.mu.Unlock()
	}
	return ok
}

// SendMessage appends an optimistic "sending" entry and writes the chat
// frame. Empty or whitespace-only text and a closed channel are rejected
// with false and no event. Sending also flushes an immediate
// is_typing=false notice.
func (s *Session) SendMessage(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if !s.transport.Connected() {
		return false
	}

	s.mu.Lock()
	m := &wire.Message{
		ID:             wire.NewID(),
		Type:           wire.TypeChat,
		From:           s.userID,
		ConversationID: s.conversationID,
		Content:        text,
		Timestamp:      time.Now(),
		Sender:         wire.SenderUser,
		Status:         wire.StatusSending,
	}
	s.appendLocked(m)
	frame := wire.Chat(m)
	typingFlush := s.stopTypingLocked()
	userID, conversationID := s.userID, s.conversationID
	s.mu.Unlock()

	if typingFlush {
		s.transport.Send(wire.Typing(userID, conversationID, false, time.Now()))
	}
	return s.transport.Send(frame)
}

// Broadcast appends and sends a non-chat notification message, e.g. an
// amendment proposal or approval notice. Returns false when the channel is
// closed; the entry is not appended in that case.
func (s *Session) Broadcast(msgType wire.Type, content, amendmentID string) bool {
	if !s.transport.Connected() {
		return false
	}

	s.mu.Lock()
	m := &wire.Message{
		ID:             wire.NewID(),
		Type:           msgType,
		From:           s.userID,
		ConversationID: s.conversationID,
		Content:        content,
		Timestamp:      time.Now(),
		Sender:         wire.SenderUser,
		AmendmentID:    amendmentID,
	}
	frame := wire.AmendmentNotice(m)
	s.mu.Unlock()

	if !s.transport.Send(frame) {
		return false
	}

	s.mu.Lock()
	s.appendLocked(m)
	s.mu.Unlock()
	s.events.Publish(channel.Event{Kind: channel.EventMessage, Message: m})
	return true
}

// Typing registers a local keystroke. The first keystroke of a burst sends
// is_typing=true; the quiet-period timer is reset on every call and sends
// is_typing=false when it fires.
func (s *Session) Typing() {
	if !s.transport.Connected() {
		return
	}

	s.mu.Lock()
	userID, conversationID := s.userID, s.conversationID
	fresh := s.typingTimer == nil
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.typingQuiet, func() {
		s.mu.Lock()
		s.typingTimer = nil
		s.mu.Unlock()
		s.transport.Send(wire.Typing(userID, conversationID, false, time.Now()))
	})
	s.mu.Unlock()

	if fresh {
		s.transport.Send(wire.Typing(userID, conversationID, true, time.Now()))
	}
}

// Timeline returns a snapshot of the current timeline. Entries are copies;
// the only way to mutate the timeline from outside is UpdateMessage.
func (s *Session) Timeline() []*wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wire.Message, len(s.timeline))
	for i, m := range s.timeline {
		clone := *m
		out[i] = &clone
	}
	return out
}

// FindAmendment returns the timeline entry carrying the given amendment id.
func (s *Session) FindAmendment(amendmentID string) (*wire.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.timeline {
		if m.AmendmentID == amendmentID && m.Type == wire.TypeBookingAmendment {
			clone := *m
			return &clone, true
		}
	}
	return nil, false
}

// UpdateMessage mutates one timeline entry under the session's lock. This is
// the only write path other components get.
func (s *Session) UpdateMessage(id string, update func(*wire.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	update(s.timeline[i])
	return true
}

// run consumes channel events until the subscription closes.
func (s *Session) run(events <-chan channel.Event) {
	for ev := range events {
		switch ev.Kind {
		case channel.EventConnected:
			s.mu.Lock()
			s.connected = true
			s.mu.Unlock()
			s.events.Publish(ev)

		case channel.EventDisconnected:
			s.mu.Lock()
			s.connected = false
			// A pending history request dies with the connection; the
			// timeline keeps whatever it had.
			s.loadingHistory = false
			s.mu.Unlock()
			s.events.Publish(ev)

		case channel.EventError:
			s.events.Publish(ev)

		case channel.EventHistory:
			s.mergeHistory(ev.History)
			s.events.Publish(ev)

		case channel.EventMessage:
			if ev.Message != nil {
				s.handleMessage(ev.Message)
			}
		}
	}
}

// handleMessage applies one live inbound frame to the timeline.
func (s *Session) handleMessage(m *wire.Message) {
	s.mu.Lock()
	local := m.From != "" && m.From == s.userID
	s.mu.Unlock()

	switch m.Type {
	case wire.TypeTyping, wire.TypeReadReceipt:
		// Ephemeral, never lands on the timeline.
		s.events.Publish(channel.Event{Kind: channel.EventMessage, Message: m})
		return

	case wire.TypeUserMessageSent:
		// Relay ack for our own message: flip sending -> sent, no append.
		s.correlateEcho(m.Content)
		s.events.Publish(channel.Event{Kind: channel.EventMessage, Message: m})
		return

	case wire.TypeChat:
		if local {
			if s.correlateEcho(m.Content) {
				s.events.Publish(channel.Event{Kind: channel.EventMessage, Message: m})
				return
			}
			// Echo for a message we never recorded (e.g. sent from
			// elsewhere before this session opened).
			m.Sender = wire.SenderUser
			m.Status = wire.StatusSent
		} else {
			m.Sender = wire.SenderOther
			m.Status = wire.StatusDelivered
			if m.HasWireID {
				s.scheduleReadReceipt(m.ID)
			}
		}

	case wire.TypeWelcome, wire.TypeSystem, wire.TypeConversationJoined, wire.TypeUnknown:
		m.Sender = wire.SenderSystem

	default:
		// booking_amendment, amendment_approved and future types keep the
		// derived sender tag.
		if local {
			m.Sender = wire.SenderUser
		} else if m.From == "" {
			m.Sender = wire.SenderSystem
		} else {
			m.Sender = wire.SenderOther
		}
	}

	if s.seen.Seen(m.ID) {
		s.logger.Debug("dropped duplicate frame", "message_id", m.ID, "type", m.Type)
		return
	}

	// The cache only covers live frames within its window; an id that
	// arrived via history merge or outlived the window is still on the
	// timeline and must not be appended or announced again.
	s.mu.Lock()
	appended := s.appendLocked(m)
	s.mu.Unlock()
	if !appended {
		s.logger.Debug("dropped frame already on timeline", "message_id", m.ID, "type", m.Type)
		return
	}
	s.events.Publish(channel.Event{Kind: channel.EventMessage, Message: m})
}

// correlateEcho finds the oldest sending entry with identical content and
// marks it sent. Content equality is a heuristic: the relay assigns no
// correlation id, so two identical texts in flight can swap status.
func (s *Session) correlateEcho(content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.timeline {
		if entry.Status == wire.StatusSending && entry.Content == content {
			entry.Status = wire.StatusSent
			return true
		}
	}
	return false
}

// mergeHistory folds a batch into the timeline, skipping ids already
// present, then re-sorts the whole timeline by timestamp. History loads at
// most once per open, so the full sort is fine.
func (s *Session) mergeHistory(batch []*wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadingHistory = false
	added := 0
	for _, m := range batch {
		if m.Type == wire.TypeTyping || m.Type == wire.TypeReadReceipt {
			continue
		}
		if _, exists := s.index[m.ID]; exists {
			continue
		}
		if m.Sender == "" {
			if m.From != "" && m.From == s.userID {
				m.Sender = wire.SenderUser
			} else if m.From == "" {
				m.Sender = wire.SenderSystem
			} else {
				m.Sender = wire.SenderOther
			}
		}
		s.timeline = append(s.timeline, m)
		s.index[m.ID] = len(s.timeline) - 1
		added++
	}

	sort.SliceStable(s.timeline, func(i, j int) bool {
		return s.timeline[i].Timestamp.Before(s.timeline[j].Timestamp)
	})
	s.index = make(map[string]int, len(s.timeline))
	for i, m := range s.timeline {
		s.index[m.ID] = i
	}

	s.logger.Debug("history merged", "batch", len(batch), "added", added, "timeline", len(s.timeline))
}

// appendLocked adds a message if its id is new and reports whether it did.
// Must hold mu.
func (s *Session) appendLocked(m *wire.Message) bool {
	if _, exists := s.index[m.ID]; exists {
		return false
	}
	s.timeline = append(s.timeline, m)
	s.index[m.ID] = len(s.timeline) - 1
	return true
}

// stopTypingLocked cancels a pending quiet-period notice. Returns whether a
// flush notice should be sent. Must hold mu.
func (s *Session) stopTypingLocked() bool {
	if s.typingTimer == nil {
		return false
	}
	s.typingTimer.Stop()
	s.typingTimer = nil
	return true
}

// scheduleReadReceipt echoes a read_receipt for a counterparty message after
// a short delay, at most once per id.
func (s *Session) scheduleReadReceipt(messageID string) {
	if s.seen.Seen("receipt:" + messageID) {
		return
	}
	s.mu.Lock()
	userID, conversationID := s.userID, s.conversationID
	s.mu.Unlock()

	time.AfterFunc(s.receiptDelay, func() {
		if !s.transport.Connected() {
			return
		}
		s.transport.Send(wire.ReadReceipt(userID, conversationID, messageID, time.Now()))
	})
}
