package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
)

// SourceStorefront identifies events written by this process.
const SourceStorefront = "storefront"

var relayDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_relay_dropped_total",
		Help: "Bus events not forwarded to Kafka because the relay buffer was full",
	},
	[]string{"topic"},
)

// Publisher writes envelopes to Kafka.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// RelayConfig tunes the relay.
type RelayConfig struct {
	KafkaTopic string
	Buffer     int
	// Skip lists bus topics that are not forwarded.
	Skip []Topic
}

// DefaultRelayConfig forwards everything except storage-change.
func DefaultRelayConfig(kafkaTopic string) RelayConfig {
	return RelayConfig{
		KafkaTopic: kafkaTopic,
		Buffer:     1024,
		Skip:       []Topic{TopicStorageChange},
	}
}

// Relay forwards bus events to a Kafka activity topic. Events are buffered
// and written by a single goroutine; when the buffer is full they are
// dropped so a slow broker never stalls the bus.
type Relay struct {
	bus    *Bus
	pub    Publisher
	cfg    RelayConfig
	logger *slog.Logger

	ch     chan Message
	cancel func()
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewRelay creates a stopped relay.
func NewRelay(bus *Bus, pub Publisher, cfg RelayConfig, logger *slog.Logger) *Relay {
	if cfg.Buffer < 1 {
		cfg.Buffer = 1
	}
	return &Relay{
		bus:    bus,
		pub:    pub,
		cfg:    cfg,
		logger: logger,
		ch:     make(chan Message, cfg.Buffer),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the bus and starts the writer goroutine.
func (r *Relay) Start() {
	skip := make(map[Topic]bool, len(r.cfg.Skip))
	for _, t := range r.cfg.Skip {
		skip[t] = true
	}

	cancels := make([]func(), 0, len(Topics))
	for _, topic := range Topics {
		if skip[topic] {
			continue
		}
		cancels = append(cancels, r.bus.Subscribe(topic, "", r.enqueue))
	}
	r.cancel = func() {
		for _, c := range cancels {
			c()
		}
	}

	go r.run()
}

func (r *Relay) enqueue(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- msg:
	default:
		relayDropped.WithLabelValues(string(msg.Topic)).Inc()
	}
}

func (r *Relay) run() {
	defer close(r.done)
	for msg := range r.ch {
		r.forward(msg)
	}
}

func (r *Relay) forward(msg Message) {
	ctx := context.Background()

	evt, err := pkgkafka.NewEvent(string(msg.Topic), msg.SessionID, SourceStorefront, msg.Payload)
	if err != nil {
		r.logger.Error("failed to build activity event",
			slog.String("topic", string(msg.Topic)),
			slog.String("error", err.Error()),
		)
		return
	}
	evt.Timestamp = msg.At
	if actor := actorOf(msg.Payload); actor != "" {
		evt.WithActor(actor)
	}

	if err := r.pub.Publish(ctx, r.cfg.KafkaTopic, evt); err != nil {
		r.logger.Warn("failed to relay bus event",
			slog.String("topic", string(msg.Topic)),
			slog.String("session_id", msg.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

// Stop unsubscribes and waits for buffered events to be written.
func (r *Relay) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()

	if r.cancel == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func actorOf(p Payload) string {
	switch v := p.(type) {
	case CartUpdated:
		return v.Actor
	case ProductAddedToCart:
		return v.Actor
	case WishlistUpdated:
		return v.UserID
	case ProductAddedToWishlist:
		return v.UserID
	case ProductRemovedFromWishlist:
		return v.UserID
	default:
		return ""
	}
}
