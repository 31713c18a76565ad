package dealevents

import (
	"context"
	"encoding/json"
	"time"

	"github.com/crm-integrations/saby-connector/internal/domain"
	"github.com/crm-integrations/saby-connector/internal/platform/logger"
	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// DealCreatedEvent is the message published for every deal this service
// creates in the CRM.
type DealCreatedEvent struct {
	EventID    string    `json:"event_id"`
	DocumentID int       `json:"document_id"`
	UUID       string    `json:"uuid"`
	Regulation int       `json:"regulation"`
	CreatedAt  time.Time `json:"created_at"`
}

// Writer is the part of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher announces created deals on a kafka topic.  Publishing is
// best-effort: a broker failure is logged, never surfaced to the API caller.
type Publisher struct {
	writer Writer
}

func NewPublisher(writer Writer) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) DealCreated(ctx context.Context, deal *domain.DealResponse) {
	event := DealCreatedEvent{
		EventID:    uuid.New().String(),
		DocumentID: deal.DocumentID,
		UUID:       deal.UUID,
		Regulation: deal.Regulation,
		CreatedAt:  deal.CreatedAt,
	}

	value, err := json.Marshal(event)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("Unable to serialize deal created event")
		return
	}

	message := kafka.Message{
		Key:   []byte(deal.UUID),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"error":       err,
			"document_id": deal.DocumentID}).Error("Unable to publish deal created event")
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"event_id":    event.EventID,
		"document_id": deal.DocumentID}).Debug("Published deal created event")
}
