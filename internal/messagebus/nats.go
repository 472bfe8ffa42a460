package messagebus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Event subjects published by memhub. Consumers subscribe to memhub.> and
// filter on the subject.
const (
	SubjectMemoryCreated     = "memhub.memory.created"
	SubjectWorkflowCompleted = "memhub.workflow.completed"
)

// Publisher emits memhub events onto a NATS JetStream stream. A nil
// *Publisher is a valid no-op publisher; callers never need to guard.
type Publisher struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	streamName string
}

// Config holds NATS configuration
type Config struct {
	URL        string        // NATS server URL (e.g., "nats://nats:4222")
	StreamName string        // JetStream stream name (default: "MEMHUB")
	Timeout    time.Duration // Connection timeout
}

// NewPublisher connects to NATS and ensures the memhub stream exists.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		cfg.URL = "nats://localhost:4222"
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "MEMHUB"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &Publisher{conn: nc, js: js, streamName: cfg.StreamName}
	if err := p.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	log.Printf("Connected to NATS at %s with JetStream stream %s", cfg.URL, cfg.StreamName)
	return p, nil
}

// ensureStream creates the JetStream stream if it does not exist yet.
// LimitsPolicy retention lets any number of consumers replay events.
func (p *Publisher) ensureStream() error {
	_, err := p.js.StreamInfo(p.streamName)
	if err == nil {
		return nil
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:      p.streamName,
		Subjects:  []string{"memhub.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		MaxBytes:  256 * 1024 * 1024, // 256MB
		Storage:   nats.FileStorage,
		Replicas:  1,
		Discard:   nats.DiscardOld,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	log.Printf("Created JetStream stream: %s", p.streamName)
	return nil
}

// Publish emits one event. Publishing is best effort: a failed publish is
// logged, never surfaced, so the write path does not depend on the bus.
func (p *Publisher) Publish(subject string, payload interface{}) {
	if p == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[EVENTS] Failed to marshal %s payload: %v", subject, err)
		return
	}
	if _, err := p.js.Publish(subject, data); err != nil {
		log.Printf("[EVENTS] Failed to publish %s: %v", subject, err)
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
