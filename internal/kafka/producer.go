package kafka

import (
	"context"
	"encoding/json"
	"time"

	"ms-admission/internal/config"
	"ms-admission/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer publishes admission notifications. Delivery is best-effort:
// a failed publish never fails the scan that triggered it.
type Producer struct {
	Writer *kafka.Writer
	Topics config.TopicConfig
}

func NewProducer(brokers []string, topics config.TopicConfig) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer, Topics: topics}
}

type admissionEvent struct {
	TicketID  string    `json:"ticket_id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	GateID    string    `json:"gate_id"`
	Action    string    `json:"action"`
	UsedCount int       `json:"used_count"`
	At        time.Time `json:"at"`
}

func (p *Producer) publish(topic string, ticket models.Ticket, gateID, action string) error {
	value, err := json.Marshal(admissionEvent{
		TicketID:  ticket.TicketID,
		EventID:   ticket.EventID,
		UserID:    ticket.UserID,
		GateID:    gateID,
		Action:    action,
		UsedCount: ticket.UsedCount,
		At:        time.Now(),
	})
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(ticket.TicketID),
			Value: value,
		},
	)
}

// PublishEntry streams a successful entry to the notification pipeline.
func (p *Producer) PublishEntry(ticket models.Ticket, gateID string) error {
	return p.publish(p.Topics.TicketEntry, ticket, gateID, models.ScanTypeEntry)
}

// PublishExit streams a successful exit to the notification pipeline.
func (p *Producer) PublishExit(ticket models.Ticket, gateID string) error {
	return p.publish(p.Topics.TicketExit, ticket, gateID, models.ScanTypeExit)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
