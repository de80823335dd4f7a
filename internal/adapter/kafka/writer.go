package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces prediction rows to a Kafka topic, one message per
// location keyed by location name.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured prediction topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaPredictionTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes all rows in a single WriteMessages call.
func (p *Publisher) Publish(ctx context.Context, rows []domain.PredictionRow) error {
	if len(rows) == 0 {
		return nil
	}
	publishedAt := domain.Clock().Now().UTC()
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(rows[i], publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish predictions: %w", err)
	}
	p.logger.Info("predictions published", "count", len(rows))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// predictionMessage is the wire form of a PredictionRow.
type predictionMessage struct {
	Location        string  `json:"location"`
	Date            string  `json:"date"`
	PM25PredNextDay float64 `json:"pm25_pred_next_day"`
	AQICategory     string  `json:"aqi_category"`
}

// serializeToMessage marshals a PredictionRow into a Kafka message.
func serializeToMessage(row domain.PredictionRow, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(predictionMessage{
		Location:        row.Location,
		Date:            row.Date.Format(domain.DateLayout),
		PM25PredNextDay: row.PM25PredNextDay,
		AQICategory:     row.AQICategory,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(row.Location),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "aqi_category", Value: []byte(row.AQICategory)},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
