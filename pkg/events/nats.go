package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsConfig holds NATS configuration
type NatsConfig struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// NatsPublisher publishes events as JSON on core NATS subjects
type NatsPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger

	mu         sync.RWMutex
	connected  bool
	reconnects int
}

// NewNatsPublisher connects to NATS
func NewNatsPublisher(cfg NatsConfig, logger *slog.Logger) (*NatsPublisher, error) {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 60
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	p := &NatsPublisher{logger: logger.With("component", "events")}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectHandler(func(*nats.Conn) {
			p.mu.Lock()
			p.reconnects++
			p.connected = true
			p.mu.Unlock()
			p.logger.Info("reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.mu.Lock()
			p.connected = false
			p.mu.Unlock()
			if err != nil {
				p.logger.Warn("disconnected from NATS", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p.conn = conn
	p.connected = true
	return p, nil
}

// Publish implements Publisher
func (p *NatsPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(e.Subject(), payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

// IsConnected reports the last known connection state
func (p *NatsPublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Close drains pending messages and closes the connection
func (p *NatsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
