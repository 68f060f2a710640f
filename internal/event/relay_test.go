package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*pkgkafka.Event
	topics []string
	err    error
	block  chan struct{}
}

func (p *fakePublisher) Publish(_ context.Context, topic string, evt *pkgkafka.Event) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, evt)
	return p.err
}

func TestRelay_ForwardsEvents(t *testing.T) {
	bus := newTestBus()
	pub := &fakePublisher{}
	relay := NewRelay(bus, pub, DefaultRelayConfig("storefront.activity.events"), logger.Discard())
	relay.Start()

	bus.Publish(CartUpdated{SessionID: "s-1", Actor: "guest", Count: 2})
	bus.Publish(ProductRemovedFromWishlist{WishlistProduct{SessionID: "s-1", UserID: "u-1", ProductID: "p-1"}})
	bus.StorageChanged(context.Background(), "s-1", "cart")

	require.NoError(t, relay.Stop(context.Background()))

	require.Len(t, pub.events, 2, "storage-change is skipped")
	assert.Equal(t, []string{"storefront.activity.events", "storefront.activity.events"}, pub.topics)

	first := pub.events[0]
	assert.Equal(t, "cart-updated", first.EventType)
	assert.Equal(t, "s-1", first.SessionID)
	assert.Equal(t, "guest", first.ActorID)
	assert.Equal(t, SourceStorefront, first.Source)

	var body CartUpdated
	require.NoError(t, first.UnmarshalData(&body))
	assert.Equal(t, 2, body.Count)

	assert.Equal(t, "u-1", pub.events[1].ActorID)
}

func TestRelay_PublishErrorIsLoggedNotFatal(t *testing.T) {
	bus := newTestBus()
	pub := &fakePublisher{err: errors.New("broker down")}
	relay := NewRelay(bus, pub, DefaultRelayConfig("t"), logger.Discard())
	relay.Start()

	bus.Publish(WishlistUpdated{SessionID: "s", Count: 1})
	bus.Publish(WishlistUpdated{SessionID: "s", Count: 2})

	require.NoError(t, relay.Stop(context.Background()))
	assert.Len(t, pub.events, 2)
}

func TestRelay_DropsWhenBufferFull(t *testing.T) {
	bus := newTestBus()
	pub := &fakePublisher{block: make(chan struct{})}
	cfg := DefaultRelayConfig("t")
	cfg.Buffer = 1
	relay := NewRelay(bus, pub, cfg, logger.Discard())
	relay.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(ProductAddedToCart{SessionID: "s"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled relay")
	}

	close(pub.block)
	require.NoError(t, relay.Stop(context.Background()))
	assert.LessOrEqual(t, len(pub.events), 2)
}

func TestRelay_StopTimesOut(t *testing.T) {
	bus := newTestBus()
	pub := &fakePublisher{block: make(chan struct{})}
	relay := NewRelay(bus, pub, DefaultRelayConfig("t"), logger.Discard())
	relay.Start()
	bus.Publish(ProductAddedToCart{SessionID: "s"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, relay.Stop(ctx), context.DeadlineExceeded)

	close(pub.block)
}

func TestRelay_StopWithoutStart(t *testing.T) {
	relay := NewRelay(newTestBus(), &fakePublisher{}, DefaultRelayConfig("t"), logger.Discard())
	assert.NoError(t, relay.Stop(context.Background()))
}
