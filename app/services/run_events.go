package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amirphl/Amaterasu/config"
	"github.com/streadway/amqp"
)

// RunFinishedEvent is published once per closed run. It carries identifiers
// and counters only.
type RunFinishedEvent struct {
	RunUUID          string     `json:"run_uuid"`
	CampaignUUID     string     `json:"campaign_uuid"`
	ScheduledRunUUID string     `json:"scheduled_run_uuid,omitempty"`
	Trigger          string     `json:"trigger"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Destinations     int        `json:"destinations"`
	Sent             int        `json:"sent"`
	Failed           int        `json:"failed"`
}

// RunEventPublisher notifies downstream consumers about finished runs
type RunEventPublisher interface {
	PublishRunFinished(ctx context.Context, event RunFinishedEvent) error
	Close() error
}

// NoopRunEventPublisher drops every event
type NoopRunEventPublisher struct{}

func (NoopRunEventPublisher) PublishRunFinished(context.Context, RunFinishedEvent) error { return nil }
func (NoopRunEventPublisher) Close() error                                              { return nil }

// AMQPRunEventPublisher publishes events to a topic exchange
type AMQPRunEventPublisher struct {
	cfg  config.EventsConfig
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPRunEventPublisher dials the broker and declares the exchange
func NewAMQPRunEventPublisher(cfg config.EventsConfig) (*AMQPRunEventPublisher, error) {
	p := &AMQPRunEventPublisher{cfg: cfg}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPRunEventPublisher) connect() error {
	conn, err := amqp.Dial(p.cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.cfg.Exchange, err)
	}
	p.conn = conn
	p.ch = ch
	return nil
}

func (p *AMQPRunEventPublisher) PublishRunFinished(ctx context.Context, event RunFinishedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    event.RunUUID,
		Body:         body,
	}
	if err := p.ch.Publish(p.cfg.Exchange, p.cfg.RoutingKey, false, false, msg); err != nil {
		log.Printf("run events: publish failed for run %s: %v", event.RunUUID, err)
		return fmt.Errorf("failed to publish run event: %w", err)
	}
	return nil
}

func (p *AMQPRunEventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
