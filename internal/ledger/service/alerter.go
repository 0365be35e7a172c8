package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"rekamed/internal/ledger"
	"rekamed/internal/platform/kafka/producer"
)

// Alert describes a failed integrity check.
type Alert struct {
	FirstBadBlockID int64     `json:"first_bad_block_id"`
	Reason          string    `json:"reason"`
	Checked         int64     `json:"checked"`
	DetectedAt      time.Time `json:"detected_at"`
	Source          string    `json:"source"`
}

// Alerter raises operational alerts. Implementations must not touch the ledger.
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}

func alertFromReport(r *ledger.Report, source string) Alert {
	a := Alert{Reason: r.Reason, Checked: r.Checked, DetectedAt: r.VerifiedAt, Source: source}
	if r.FirstBadBlockID != nil {
		a.FirstBadBlockID = *r.FirstBadBlockID
	}
	return a
}

// LogAlerter writes alerts at error level.
type LogAlerter struct {
	logger *slog.Logger
}

func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(ctx context.Context, alert Alert) error {
	a.logger.ErrorContext(ctx, "ledger integrity violation",
		"first_bad_block_id", alert.FirstBadBlockID,
		"reason", alert.Reason,
		"checked", alert.Checked,
		"source", alert.Source,
	)
	return nil
}

// MessageProducer is the slice of the Kafka producer alerts need.
type MessageProducer interface {
	Produce(ctx context.Context, msgs ...*producer.Message) error
}

// KafkaAlerter publishes alerts to a topic consumed by on-call tooling.
type KafkaAlerter struct {
	producer MessageProducer
	topic    string
}

func NewKafkaAlerter(p MessageProducer, topic string) *KafkaAlerter {
	return &KafkaAlerter{producer: p, topic: topic}
}

func (a *KafkaAlerter) Alert(ctx context.Context, alert Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode ledger alert: %w", err)
	}
	return a.producer.Produce(ctx, &producer.Message{
		Topic: a.topic,
		Key:   []byte(strconv.FormatInt(alert.FirstBadBlockID, 10)),
		Value: value,
		Headers: map[string]string{
			"event_type": "ledger.integrity_violation",
			"reason":     alert.Reason,
		},
	})
}

// MultiAlerter fans out to every alerter and joins their errors.
type MultiAlerter []Alerter

func (m MultiAlerter) Alert(ctx context.Context, alert Alert) error {
	var errs []error
	for _, a := range m {
		if err := a.Alert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
