package taskq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes tasks to a topic keyed by company, so one company's tasks
// land on one partition and are consumed in order.
type Kafka struct {
	writer messageWriter
	reader messageReader
	log    *slog.Logger
}

func NewKafka(cfg KafkaConfig, logger *slog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newKafka(writer, reader, logger), nil
}

func newKafka(w messageWriter, r messageReader, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{writer: w, reader: r, log: logger}
}

func (k *Kafka) Enqueue(ctx context.Context, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(tasks))
	for _, t := range tasks {
		msg, err := encodeMessage(t)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish tasks: %w", err)
	}
	return nil
}

// Consume reads tasks until ctx is cancelled. A message is committed after h
// returns, whatever the outcome; h is expected to carry its own retries.
func (k *Kafka) Consume(ctx context.Context, h Handler) error {
	k.log.Info("kafka consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			k.log.Error("fetch task message", "err", err)
			if err := sleepWithContext(ctx, time.Second); err != nil {
				return nil
			}
			continue
		}

		t, err := decodeMessage(msg)
		if err != nil {
			k.log.Error("drop malformed task message", "offset", msg.Offset, "partition", msg.Partition, "err", err)
		} else {
			_ = h(ctx, t)
		}
		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			k.log.Error("commit task message", "offset", msg.Offset, "err", err)
		}
	}
}

func (k *Kafka) Close() error {
	return errors.Join(k.writer.Close(), k.reader.Close())
}

func messageKey(t Task) []byte {
	if t.CompanyID == 0 {
		return []byte("system")
	}
	return []byte(strconv.FormatInt(t.CompanyID, 10))
}

func encodeMessage(t Task) (kafka.Message, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode task %s: %w", t, err)
	}
	return kafka.Message{
		Key:     messageKey(t),
		Value:   raw,
		Headers: []kafka.Header{{Key: "task", Value: []byte(t.Name)}},
	}, nil
}

func decodeMessage(msg kafka.Message) (Task, error) {
	var t Task
	if err := json.Unmarshal(msg.Value, &t); err != nil {
		return Task{}, err
	}
	if t.Name == "" {
		return Task{}, errors.New("task name missing")
	}
	return t, nil
}
