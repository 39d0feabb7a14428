package backplane

import (
	"context"
	"sync"

	"github.com/alfreddev/cachify/observability"
	"github.com/rs/zerolog"
)

// Handler reacts to one invalidation. A returned error is logged, never
// propagated.
type Handler func(ctx context.Context, inv Invalidation) error

// Subscriber lazily subscribes on first handler attachment, filters out
// echoes of its own instance's messages, and dispatches sequentially to
// every registered handler.
type Subscriber struct {
	transport  Transport
	channel    string
	instanceID string
	logger     zerolog.Logger
	metrics    *observability.Metrics

	mu         sync.Mutex
	handlers   []Handler
	subscribed bool
	cancel     context.CancelFunc
}

// NewSubscriber constructs a Subscriber. It does not subscribe until the
// first call to OnInvalidation.
func NewSubscriber(transport Transport, channel, instanceID string, logger zerolog.Logger, metrics *observability.Metrics) *Subscriber {
	return &Subscriber{
		transport:  transport,
		channel:    channel,
		instanceID: instanceID,
		logger:     logger.With().Str("component", "backplane.subscriber").Logger(),
		metrics:    metrics,
	}
}

// OnInvalidation registers h. The first registration triggers the lazy
// channel subscription.
func (s *Subscriber) OnInvalidation(h Handler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	first := !s.subscribed
	s.subscribed = true
	s.mu.Unlock()

	if first {
		s.start()
	}
}

func (s *Subscriber) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	msgs, unsubscribe, err := s.transport.Subscribe(ctx, s.channel)
	if err != nil {
		s.logger.Error().Err(err).Str("channel", s.channel).Msg("backplane subscribe failed")
		cancel()
		return
	}
	go s.loop(ctx, msgs, unsubscribe)
}

func (s *Subscriber) loop(ctx context.Context, msgs <-chan []byte, unsubscribe func() error) {
	defer func() { _ = unsubscribe() }()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			s.handle(ctx, raw)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, raw []byte) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		s.drop("decode")
		return
	}
	if env.V != wireVersion {
		s.drop("version")
		return
	}
	if !env.valid() {
		s.drop("empty_src")
		return
	}
	if env.Src == s.instanceID {
		s.drop("echo")
		return
	}

	s.mu.Lock()
	handlers := append([]Handler(nil), s.handlers...)
	s.mu.Unlock()

	for _, inv := range env.expand() {
		for _, h := range handlers {
			if err := h(ctx, inv); err != nil {
				s.logger.Warn().Err(err).Str("key", inv.Key).Str("tag", inv.Tag).Msg("backplane handler error")
				continue
			}
			if s.metrics != nil {
				s.metrics.BackplaneDelivered.Inc()
			}
		}
	}
}

func (s *Subscriber) drop(reason string) {
	if s.metrics != nil {
		s.metrics.BackplaneDropped.WithLabelValues(reason).Inc()
	}
}

// Close cancels the dispatch loop and removes the channel subscription.
func (s *Subscriber) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
