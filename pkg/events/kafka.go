// Package events publishes accepted sessions to Kafka for downstream
// enrichment and analytics consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/copyleftdev/scrybe/pkg/models"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type Producer struct {
	writer kafkaWriter
}

func NewProducer(cfg KafkaConfig) (*Producer, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: w}, nil
}

// SessionEvent is the wire record for one accepted session. Signal
// payloads stay in storage; consumers that need them fetch by id.
type SessionEvent struct {
	SessionID       string    `json:"session_id"`
	Timestamp       time.Time `json:"timestamp"`
	FingerprintHash string    `json:"fingerprint_hash"`
	Confidence      float64   `json:"confidence"`
	IP              string    `json:"ip"`
	UserAgent       string    `json:"user_agent"`
}

// Publish keys messages by fingerprint hash so all sessions of one
// browser land in the same partition.
func (p *Producer) Publish(ctx context.Context, sess models.Session) error {
	if p == nil || p.writer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}
	evt := SessionEvent{
		SessionID:       sess.ID,
		Timestamp:       sess.Timestamp,
		FingerprintHash: sess.Fingerprint.Hash,
		Confidence:      sess.Fingerprint.Confidence,
		IP:              sess.Network.IP,
		UserAgent:       sess.Browser.UserAgent,
	}
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(sess.Fingerprint.Hash),
		Value: value,
	})
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
