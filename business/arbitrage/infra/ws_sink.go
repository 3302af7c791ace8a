package infra

import (
	"context"
	"time"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/logger"
	"github.com/fd1az/cfmm-arbitrage/internal/wsconn"
)

// WebSocketSink streams opportunities and routes as JSON envelopes to a
// downstream consumer. Messages published while disconnected are dropped.
type WebSocketSink struct {
	client *wsconn.Client
	logger logger.LoggerInterface
	now    func() time.Time
}

// NewWebSocketSink creates a sink for url.
func NewWebSocketSink(url string, log logger.LoggerInterface) (*WebSocketSink, error) {
	cfg := wsconn.DefaultConfig(url, "opportunity-sink")
	cfg.Logger = log

	client, err := wsconn.New(cfg)
	if err != nil {
		return nil, err
	}

	client.OnStateChange(func(state wsconn.State, err error) {
		if err != nil {
			log.Warn(context.Background(), "opportunity sink connection changed", "state", state, "error", err)
			return
		}
		log.Info(context.Background(), "opportunity sink connection changed", "state", state)
	})

	return &WebSocketSink{client: client, logger: log, now: time.Now}, nil
}

// Start dials the consumer.
func (s *WebSocketSink) Start(ctx context.Context) error {
	return s.client.Connect(ctx)
}

// Publish sends one envelope holding every result.
func (s *WebSocketSink) Publish(ctx context.Context, results []*domain.TradeResult) error {
	data := make([]OpportunityJSON, len(results))
	for i, r := range results {
		data[i] = ToOpportunityJSON(r)
	}
	return s.client.SendJSON(ctx, Envelope{Type: TypeOpportunities, Sent: s.now().UTC(), Data: data})
}

// PublishRoute sends an optimizer route.
func (s *WebSocketSink) PublishRoute(ctx context.Context, r *domain.Route) error {
	return s.client.SendJSON(ctx, Envelope{Type: TypeRoute, Sent: s.now().UTC(), Data: ToRouteJSON(r)})
}

// Connected reports whether the consumer is reachable.
func (s *WebSocketSink) Connected() bool {
	return s.client.IsConnected()
}

// Stop closes the connection.
func (s *WebSocketSink) Stop() error {
	return s.client.Close()
}
