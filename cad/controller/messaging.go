package controller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/internal/channel"
)

// LatencyTarget is the design target for message delivery; deliveries
// slower than this are logged as warnings.
const LatencyTarget = 100 * time.Millisecond

// Hub routes messages between agents. Each agent owns its inbound
// queue (a bounded, tunable channel); the hub holds only a handle that
// is discarded when the agent shuts down, so no sender can keep a
// queue alive past its owner.
type Hub struct {
	mu     sync.RWMutex
	queues map[string]*channel.TunableChannel[*model.AgentMessage]
	nextID atomic.Int64
	logger *zap.Logger
}

// NewHub returns an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		queues: make(map[string]*channel.TunableChannel[*model.AgentMessage]),
		logger: logger.With(zap.String("component", "message_hub")),
	}
}

// Register allocates agentID's inbound queue.
func (h *Hub) Register(agentID string, queueDepth int) {
	cfg := channel.DefaultTunableConfig()
	if queueDepth > 0 {
		cfg.InitialSize = queueDepth
		cfg.MaxSize = queueDepth
		cfg.MinSize = queueDepth
	}
	h.mu.Lock()
	h.queues[agentID] = channel.NewTunableChannel[*model.AgentMessage](cfg)
	h.mu.Unlock()
}

// Unregister discards agentID's queue; pending messages are dropped
// with the agent.
func (h *Hub) Unregister(agentID string) {
	h.mu.Lock()
	delete(h.queues, agentID)
	h.mu.Unlock()
}

// validateContent enforces the per-type required-field contract.
func validateContent(t model.MessageType, content map[string]any) error {
	required := model.RequiredContentFields(t)
	if required == nil {
		return fmt.Errorf("unknown message type %q", t)
	}
	for _, field := range required {
		if _, ok := content[field]; !ok {
			return fmt.Errorf("message content for type %s requires field %q", t, field)
		}
	}
	return nil
}

// Send validates and delivers one message. to may be an agent id or the
// broadcast sentinel, which fans out to every registered agent except
// the sender. The stamped id is monotonic for the life of the hub.
func (h *Hub) Send(ctx context.Context, from, to string, t model.MessageType, content map[string]any) (*model.AgentMessage, error) {
	if err := validateContent(t, content); err != nil {
		return nil, err
	}

	msg := &model.AgentMessage{
		MessageID:   fmt.Sprintf("msg_%06d", h.nextID.Add(1)),
		FromAgentID: from,
		ToAgentID:   to,
		MessageType: t,
		Content:     content,
		Timestamp:   time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if to == model.BroadcastRecipient {
		for id, q := range h.queues {
			if id == from {
				continue
			}
			if err := q.Send(ctx, msg); err != nil {
				return nil, fmt.Errorf("delivering broadcast to %s: %w", id, err)
			}
		}
		return msg, nil
	}

	q, ok := h.queues[to]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", to)
	}
	if err := q.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("delivering to %s: %w", to, err)
	}
	return msg, nil
}

// Drain removes and returns every queued message for agentID, marking
// each read when markRead is set. Delivery latency beyond the design
// target is logged.
func (h *Hub) Drain(agentID string, markRead bool) ([]*model.AgentMessage, error) {
	h.mu.RLock()
	q, ok := h.queues[agentID]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", agentID)
	}

	now := time.Now().UTC()
	var out []*model.AgentMessage
	for {
		msg, ok := q.TryReceive()
		if !ok {
			break
		}
		if latency := now.Sub(msg.Timestamp); latency > LatencyTarget {
			h.logger.Warn("message latency exceeded target",
				zap.String("message_id", msg.MessageID),
				zap.String("to", agentID),
				zap.Duration("latency", latency))
		}
		if markRead {
			msg.Read = true
		}
		out = append(out, msg)
	}
	return out, nil
}

// ValidateTimestamp rejects messages stamped further into the future
// than the clock-skew allowance.
func ValidateTimestamp(msg *model.AgentMessage, now time.Time) error {
	if msg.Timestamp.After(now.Add(model.AllowedClockSkew)) {
		return fmt.Errorf("message %s timestamp %s is too far in the future", msg.MessageID, msg.Timestamp)
	}
	return nil
}
