package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"layanan/internal/config"
	"layanan/internal/models"

	"github.com/segmentio/kafka-go"
)

// LocationReport is the message written to the location topic.
type LocationReport struct {
	MitraID    int64     `json:"mitra_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ReportedAt time.Time `json:"reported_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter publishes location reports keyed by mitra id, so one mitra's
// reports stay ordered within a partition.
type KafkaReporter struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaReporter(cfg config.KafkaConfig) *KafkaReporter {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaReporter{writer: w, timeout: 2 * time.Second}
}

func (k *KafkaReporter) Report(ctx context.Context, mitraID int64, coord models.Coord) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	b, err := json.Marshal(LocationReport{
		MitraID:    mitraID,
		Latitude:   coord.Lat,
		Longitude:  coord.Lng,
		ReportedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(strconv.FormatInt(mitraID, 10)), Value: b}); err != nil {
		return fmt.Errorf("kafka location report: %w", err)
	}
	return nil
}

func (k *KafkaReporter) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
