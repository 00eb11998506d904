package usecase

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chopstar001/chat-intent-bridge/internal/biz/domain"
	"github.com/chopstar001/chat-intent-bridge/internal/clock"
)

// CoalescerConfig contains coalescer configuration
type CoalescerConfig struct {
	SettleDelay  time.Duration // Quiet period after the last fragment before flushing
	MaxFragments int           // Flush immediately once this many fragments are buffered
}

// DefaultCoalescerConfig returns default coalescer configuration
func DefaultCoalescerConfig() CoalescerConfig {
	return CoalescerConfig{
		SettleDelay:  1 * time.Second,
		MaxFragments: 15,
	}
}

// MessageHandler receives every logical message the coalescer emits
type MessageHandler func(msg domain.LogicalMessage)

type bufferKey struct {
	chatID string
	userID string
}

type pendingBuffer struct {
	fragments []domain.Fragment
	gen       uint64
	timer     clock.Timer
}

// Coalescer merges rapid consecutive fragments from one participant into
// a single logical message
type Coalescer struct {
	clock   clock.Clock
	config  CoalescerConfig
	deliver MessageHandler

	mu      sync.Mutex
	buffers map[bufferKey]*pendingBuffer

	join func(parts []string) string
}

// NewCoalescer creates a new coalescer
func NewCoalescer(clk clock.Clock, config CoalescerConfig, deliver MessageHandler) *Coalescer {
	if config.SettleDelay <= 0 {
		config.SettleDelay = DefaultCoalescerConfig().SettleDelay
	}
	if config.MaxFragments <= 0 {
		config.MaxFragments = DefaultCoalescerConfig().MaxFragments
	}
	return &Coalescer{
		clock:   clk,
		config:  config,
		deliver: deliver,
		buffers: make(map[bufferKey]*pendingBuffer),
		join:    joinFragments,
	}
}

// Submit accepts one inbound fragment
func (c *Coalescer) Submit(chatID, userID, text string, isCommand bool) {
	c.Add(domain.Fragment{
		ChatID:    chatID,
		UserID:    userID,
		Text:      text,
		IsCommand: isCommand,
	})
}

// Add accepts a fragment together with its transport details. ArrivedAt
// defaults to the current time.
func (c *Coalescer) Add(frag domain.Fragment) {
	if frag.ArrivedAt.IsZero() {
		frag.ArrivedAt = c.clock.Now()
	}

	// Commands bypass buffering and never touch a pending buffer
	if frag.IsCommand {
		c.emit([]domain.Fragment{frag}, "command")
		return
	}

	key := bufferKey{chatID: frag.ChatID, userID: frag.UserID}

	c.mu.Lock()
	buf, ok := c.buffers[key]
	if !ok {
		buf = &pendingBuffer{}
		c.buffers[key] = buf
	}
	buf.fragments = append(buf.fragments, frag)
	buf.gen++
	if buf.timer != nil {
		buf.timer.Stop()
		buf.timer = nil
	}

	if len(buf.fragments) >= c.config.MaxFragments {
		delete(c.buffers, key)
		c.mu.Unlock()
		c.emit(buf.fragments, "cap")
		return
	}

	gen := buf.gen
	buf.timer = c.clock.AfterFunc(c.config.SettleDelay, func() {
		c.onSettle(key, gen)
	})
	c.mu.Unlock()
}

// onSettle flushes a buffer whose settle timer expired, unless newer
// fragments re-armed it in the meantime
func (c *Coalescer) onSettle(key bufferKey, gen uint64) {
	c.mu.Lock()
	buf, ok := c.buffers[key]
	if !ok || buf.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.buffers, key)
	c.mu.Unlock()

	c.emit(buf.fragments, "settle")
}

// Flush immediately emits whatever is buffered for (chatID, userID)
func (c *Coalescer) Flush(chatID, userID string) bool {
	key := bufferKey{chatID: chatID, userID: userID}

	c.mu.Lock()
	buf, ok := c.buffers[key]
	if ok {
		delete(c.buffers, key)
		if buf.timer != nil {
			buf.timer.Stop()
		}
	}
	c.mu.Unlock()

	if !ok || len(buf.fragments) == 0 {
		return false
	}
	c.emit(buf.fragments, "forced")
	return true
}

// FlushAll emits every pending buffer. Used on shutdown.
func (c *Coalescer) FlushAll() int {
	c.mu.Lock()
	pending := make([]*pendingBuffer, 0, len(c.buffers))
	for key, buf := range c.buffers {
		if buf.timer != nil {
			buf.timer.Stop()
		}
		pending = append(pending, buf)
		delete(c.buffers, key)
	}
	c.mu.Unlock()

	for _, buf := range pending {
		c.emit(buf.fragments, "forced")
	}
	return len(pending)
}

// Pending returns the number of buffered fragments for (chatID, userID)
func (c *Coalescer) Pending(chatID, userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buf, ok := c.buffers[bufferKey{chatID: chatID, userID: userID}]; ok {
		return len(buf.fragments)
	}
	return 0
}

func (c *Coalescer) emit(fragments []domain.Fragment, reason string) {
	msg := c.assemble(fragments)
	coalescedMessagesTotal.WithLabelValues(reason).Inc()

	log.Debug().
		Str("component", "coalescer").
		Str("chat_id", msg.ChatID).
		Str("user_id", msg.UserID).
		Int("fragments", msg.FragmentCount).
		Str("reason", reason).
		Msg("logical message ready")

	if c.deliver != nil {
		c.deliver(msg)
	}
}

// assemble builds the logical message. If joining fails the first fragment
// is delivered verbatim.
func (c *Coalescer) assemble(fragments []domain.Fragment) (msg domain.LogicalMessage) {
	first := fragments[0]
	last := fragments[len(fragments)-1]

	var msgIDs []string
	mentioned := false
	for _, f := range fragments {
		if f.MsgID != "" {
			msgIDs = append(msgIDs, f.MsgID)
		}
		mentioned = mentioned || f.Mentioned
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("component", "coalescer").
				Str("chat_id", first.ChatID).
				Interface("panic", r).
				Msg("fragment join failed, delivering first fragment")
			msg = domain.LogicalMessage{
				ID:            uuid.New().String(),
				ChatID:        first.ChatID,
				UserID:        first.UserID,
				Text:          first.Text,
				FragmentCount: 1,
				IsCommand:     first.IsCommand,
				FirstAt:       first.ArrivedAt,
				LastAt:        first.ArrivedAt,
				MsgIDs:        msgIDs,
				Mentioned:     mentioned,
			}
		}
	}()

	parts := make([]string, len(fragments))
	for i, f := range fragments {
		parts[i] = f.Text
	}

	return domain.LogicalMessage{
		ID:            uuid.New().String(),
		ChatID:        first.ChatID,
		UserID:        first.UserID,
		Text:          c.join(parts),
		FragmentCount: len(fragments),
		IsCommand:     first.IsCommand,
		FirstAt:       first.ArrivedAt,
		LastAt:        last.ArrivedAt,
		MsgIDs:        msgIDs,
		Mentioned:     mentioned,
	}
}

// joinFragments strips continuation markers at inner fragment edges and
// joins the pieces with a blank line
func joinFragments(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}

	pieces := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p = trimMarkerSuffix(p)
		}
		if i > 0 {
			p = trimMarkerPrefix(p)
		}
		if p = strings.TrimSpace(p); p != "" {
			pieces = append(pieces, p)
		}
	}
	return strings.Join(pieces, "\n\n")
}

func trimMarkerSuffix(s string) string {
	s = strings.TrimRight(s, " \t\n")
	for _, m := range domain.FragmentMarkers {
		if strings.HasSuffix(s, m) {
			return strings.TrimSuffix(s, m)
		}
	}
	return s
}

func trimMarkerPrefix(s string) string {
	s = strings.TrimLeft(s, " \t\n")
	for _, m := range domain.FragmentMarkers {
		if strings.HasPrefix(s, m) {
			return strings.TrimPrefix(s, m)
		}
	}
	return s
}
