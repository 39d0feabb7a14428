package backplane

import (
	"context"
	"sync"
	"time"

	"github.com/alfreddev/cachify/clock"
	"github.com/alfreddev/cachify/observability"
	"github.com/rs/zerolog"
)

// Publisher implements cache.Invalidator with two publish modes:
// immediate mode when batchSize <= 1 or
// batchWindow <= 0, batched otherwise (enqueue into a FIFO, flush on
// batch_size items or batch_window elapsed, serialized by a non-reentrant
// gate, single-shot timer created on first enqueue and disposed on flush).
type Publisher struct {
	transport  Transport
	channel    string
	instanceID string

	batchSize   int
	batchWindow time.Duration

	clock   clock.Clock
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	queue    []item
	timer    clock.Timer
	flushing bool
}

// NewPublisher constructs a Publisher. batchSize <= 1 or batchWindow <= 0
// selects immediate mode.
func NewPublisher(transport Transport, channel, instanceID string, batchSize int, batchWindow time.Duration, c clock.Clock, logger zerolog.Logger, metrics *observability.Metrics) *Publisher {
	if c == nil {
		c = clock.Real{}
	}
	return &Publisher{
		transport:   transport,
		channel:     channel,
		instanceID:  instanceID,
		batchSize:   batchSize,
		batchWindow: batchWindow,
		clock:       c,
		logger:      logger.With().Str("component", "backplane.publisher").Logger(),
		metrics:     metrics,
	}
}

// PublishKey satisfies cache.Invalidator.
func (p *Publisher) PublishKey(ctx context.Context, key string) error {
	return p.publish(ctx, item{Key: key})
}

// PublishTag publishes a tag invalidation.
func (p *Publisher) PublishTag(ctx context.Context, tag string) error {
	return p.publish(ctx, item{Tag: tag})
}

func (p *Publisher) publish(ctx context.Context, it item) error {
	if p.batchSize <= 1 || p.batchWindow <= 0 {
		return p.send(ctx, envelope{V: wireVersion, Src: p.instanceID, Key: it.Key, Tag: it.Tag})
	}
	return p.enqueue(ctx, it)
}

func (p *Publisher) enqueue(ctx context.Context, it item) error {
	p.mu.Lock()
	p.queue = append(p.queue, it)
	full := len(p.queue) >= p.batchSize
	if p.timer == nil {
		p.timer = p.clock.NewTimer(p.batchWindow)
		go p.awaitTimer(p.timer)
	}
	p.mu.Unlock()

	if full {
		return p.flush(ctx)
	}
	return nil
}

func (p *Publisher) awaitTimer(timer clock.Timer) {
	<-timer.C()
	_ = p.flush(context.Background())
}

// flush is a non-reentrant gate: a flush already in
// progress is a no-op for a second caller, rather than racing it.
func (p *Publisher) flush(ctx context.Context) error {
	p.mu.Lock()
	if p.flushing || len(p.queue) == 0 {
		if p.timer != nil && len(p.queue) == 0 {
			p.timer.Stop()
			p.timer = nil
		}
		p.mu.Unlock()
		return nil
	}
	p.flushing = true
	items := p.queue
	p.queue = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.flushing = false
		p.mu.Unlock()
	}()

	return p.send(ctx, envelope{V: wireVersion, Src: p.instanceID, Items: items})
}

// Close drains the queue and flushes once.
func (p *Publisher) Close(ctx context.Context) error {
	return p.flush(ctx)
}

func (p *Publisher) send(ctx context.Context, env envelope) error {
	payload, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	if err := p.transport.Publish(ctx, p.channel, payload); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.BackplanePublished.Inc()
	}
	return nil
}
