package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-sync/internal/models"
)

// JournalProducer mirrors every published position sample onto a Kafka topic
// so downstream consumers (analytics, replay) see the same feed as the
// counterparty.
type JournalProducer struct {
	writer *kafka.Writer
}

func NewJournalProducer(brokers []string, topic string) *JournalProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &JournalProducer{writer: w}
}

type journalRecord struct {
	ActorID   string    `json:"actor_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *JournalProducer) Record(actorID string, s models.PositionSample) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(journalRecord{ActorID: actorID, Lat: s.Lat, Lon: s.Lon, Timestamp: s.CapturedAt})
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(actorID), Value: b})
}

func (p *JournalProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
