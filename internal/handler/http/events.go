package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/r3labs/sse/v2"

	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/pkg/logger"
)

const (
	streamBuffer     = 256
	streamMaxEntries = 256
)

var (
	streamConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_sse_connections",
		Help: "Open event stream connections",
	})

	streamDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_sse_dropped_total",
		Help: "Bus events dropped because a stream client was too slow",
	})
)

// EventStream pushes the bus events of a session to a view over
// Server-Sent Events. Each connection gets its own stream; the replayed
// topics arrive first, so a view mounted late starts from the last cart and
// wishlist state.
type EventStream struct {
	server *sse.Server
	bus    *event.Bus
	logger *slog.Logger
}

// NewEventStream creates the stream endpoint.
func NewEventStream(bus *event.Bus, logger *slog.Logger) *EventStream {
	server := sse.New()
	server.AutoStream = false
	server.Headers = map[string]string{
		"X-Accel-Buffering": "no",
	}
	return &EventStream{server: server, bus: bus, logger: logger}
}

// ServeHTTP handles GET /events?session=
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := logger.SessionIDFromContext(r.Context())
	streamID := sessionID + ":" + uuid.NewString()
	s.server.CreateStreamWithOpts(streamID, sse.StreamOpts{MaxEntries: streamMaxEntries, AutoReplay: true})
	defer s.server.RemoveStream(streamID)

	// The bus delivers synchronously, so the subscriber only enqueues.
	msgs := make(chan event.Message, streamBuffer)
	cancel := s.bus.SubscribeAll(sessionID, func(msg event.Message) {
		select {
		case msgs <- msg:
		default:
			streamDropped.Inc()
		}
	})
	defer cancel()

	done := make(chan struct{})
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		for {
			select {
			case msg := <-msgs:
				s.forward(streamID, msg)
			case <-done:
				return
			}
		}
	}()

	streamConnections.Inc()
	defer streamConnections.Dec()
	s.logger.DebugContext(r.Context(), "event stream opened", slog.String("stream", streamID))

	q := r.URL.Query()
	q.Set("stream", streamID)
	req := r.Clone(r.Context())
	req.URL.RawQuery = q.Encode()
	s.server.ServeHTTP(w, req)

	close(done)
	<-pumped
	s.logger.DebugContext(r.Context(), "event stream closed", slog.String("stream", streamID))
}

func (s *EventStream) forward(streamID string, msg event.Message) {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		s.logger.Error("encode stream event",
			slog.String("topic", string(msg.Topic)),
			slog.String("error", err.Error()),
		)
		return
	}
	s.server.Publish(streamID, &sse.Event{Event: []byte(msg.Topic), Data: data})
}

// Close ends every open stream.
func (s *EventStream) Close() {
	s.server.Close()
}
