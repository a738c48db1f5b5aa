package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	walletbridge "github.com/x402wallet/walletbridge"
	"github.com/x402wallet/walletbridge/logger"
	"github.com/x402wallet/walletbridge/metrics"
)

// RelayResolver returns the relay serving a tab. In the browser this is
// the per-tab content script handle; headless embeddings map every tab to
// an in-process relay.
type RelayResolver interface {
	RelayFor(tab Tab) (*Relay, error)
}

// RelayResolverFunc adapts a function to RelayResolver.
type RelayResolverFunc func(tab Tab) (*Relay, error)

func (f RelayResolverFunc) RelayFor(tab Tab) (*Relay, error) { return f(tab) }

// Sender is the UI-context hop: it locates an eligible tab, delivers a
// capability request through that tab's relay, and waits for the single
// reply under a deadline.
type Sender struct {
	tabs     TabQuerier
	relays   RelayResolver
	log      logger.Logger
	recorder metrics.Recorder
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithLogger sets the sender's logger.
func WithLogger(log logger.Logger) SenderOption {
	return func(s *Sender) { s.log = log }
}

// WithRecorder sets the sender's metrics recorder.
func WithRecorder(rec metrics.Recorder) SenderOption {
	return func(s *Sender) { s.recorder = rec }
}

// NewSender creates a sender over a tab querier and relay resolver.
func NewSender(tabs TabQuerier, relays RelayResolver, opts ...SenderOption) *Sender {
	s := &Sender{
		tabs:     tabs,
		relays:   relays,
		log:      logger.Noop{},
		recorder: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invoke performs one wallet capability call. A fresh correlation id is
// issued per call; on timeout the call fails without canceling the page
// side, and the eventual late reply is dropped by the relay's idempotent
// resolution.
func (s *Sender) Invoke(ctx context.Context, op string, payload any, timeout time.Duration) (json.RawMessage, error) {
	s.recorder.IncCounter(metrics.EventBridgeInvoke, nil)
	start := time.Now()

	result, err := WithTimeout(ctx, timeout, func(ctx context.Context) (json.RawMessage, error) {
		return s.invoke(ctx, op, payload)
	})

	s.recorder.ObserveLatency(op, time.Since(start), nil)
	if errors.Is(err, walletbridge.ErrTimeout) {
		s.recorder.IncCounter(metrics.EventBridgeTimeout, nil)
	}
	return result, err
}

func (s *Sender) invoke(ctx context.Context, op string, payload any) (json.RawMessage, error) {
	tab, err := LocateTargetTab(ctx, s.tabs)
	if err != nil {
		return nil, err
	}

	relay, err := s.relays.RelayFor(tab)
	if err != nil {
		return nil, fmt.Errorf("failed to reach tab %d (%s): %w", tab.ID, tab.URL, err)
	}

	var raw json.RawMessage
	if payload != nil {
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload for %s: %w", op, err)
		}
	}

	env := Envelope{
		Target:        TargetPage,
		CorrelationID: NewCorrelationID(),
		Op:            op,
		Payload:       raw,
	}

	replies := make(chan Envelope, 1)
	relay.Deliver(env, func(reply Envelope) {
		replies <- reply
	})

	s.log.Debug("capability request delivered", map[string]any{
		"op":            op,
		"correlationId": env.CorrelationID,
		"tab":           tab.ID,
	})

	select {
	case reply := <-replies:
		if reply.Error != "" {
			return nil, &walletbridge.ProviderError{Code: reply.ErrorCode, Message: reply.Error}
		}
		return reply.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
