package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"venue-ledger/config"
	"venue-ledger/internal/model"
	"venue-ledger/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaEventQueueImpl struct {
	writer *kafka.Writer
	cfg    config.KafkaConfig
	reader *kafka.Reader
}

// NewKafkaEventQueue 以 venue id 當 message key，同一場館的事件落在同一個 partition，順序得以保留
func NewKafkaEventQueue(cfg config.KafkaConfig) EventQueue {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaEventQueueImpl{
		writer: writer,
		cfg:    cfg,
	}
}

func (q *KafkaEventQueueImpl) Publish(ctx context.Context, event *model.LedgerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.VenueID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Subscribe FetchMessage + CommitMessages：Ack 才提交 offset；Nack(requeue) 不提交，重啟後重新消費
func (q *KafkaEventQueueImpl) Subscribe(ctx context.Context) (<-chan Delivery, error) {
	if q.reader != nil {
		return nil, errors.New("kafka event queue already subscribed")
	}
	q.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  q.cfg.Brokers,
		Topic:    q.cfg.Topic,
		GroupID:  q.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})

	out := make(chan Delivery)
	go func() {
		defer close(out)
		log := logger.WithComponent("mq")

		for {
			msg, err := q.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				log.Error("kafka fetch failed", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			var event model.LedgerEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.Warn("unmarshal event failed", zap.Int64("offset", msg.Offset), zap.Error(err))
				_ = q.reader.CommitMessages(ctx, msg)
				continue
			}

			m := msg
			commit := func() {
				if err := q.reader.CommitMessages(ctx, m); err != nil {
					log.Error("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
			d := Delivery{
				Data: &event,
				Ack:  commit,
				Nack: func(requeue bool) {
					if requeue {
						log.Info("message nack(requeue), offset not committed", zap.Int64("offset", m.Offset))
						return
					}
					commit()
				},
			}

			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (q *KafkaEventQueueImpl) Close() error {
	var errs []error
	if err := q.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if q.reader != nil {
		if err := q.reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
