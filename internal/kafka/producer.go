package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/usecase"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/util"
)

const recordTimeout = 5 * time.Second

type graphEventProducer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewGraphEventPublisher publishes structural edits to the graph event topic.
// With Kafka disabled the events are recorded as activities directly.
func NewGraphEventPublisher(
	lc fx.Lifecycle,
	conf *config.Config,
	activities usecase.ActivityStore,
) (usecase.GraphEventPublisher, error) {
	if !conf.Kafka.Enabled {
		return NewDirectPublisher(activities), nil
	}

	producer, err := sarama.NewSyncProducer(conf.Kafka.Brokers, newSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("new sync producer: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return producer.Close()
		},
	})
	return &graphEventProducer{producer: producer, topic: conf.Kafka.Topic}, nil
}

func newSaramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = "mindmap-chat"
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Retry.Max = 3
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true
	return sc
}

func (p *graphEventProducer) PublishGraphEvent(ctx context.Context, event models.GraphEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		log.Errorw(ctx, "failed to marshal graph event", "type", event.Type, "error", err)
		return
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.ChatID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		log.Errorw(ctx, "failed to publish graph event", "type", event.Type, "chat_id", event.ChatID, "error", err)
		return
	}
	log.Debugw(ctx, "graph event published", "type", event.Type, "partition", partition, "offset", offset)
}

type directPublisher struct {
	activities usecase.ActivityStore
}

func NewDirectPublisher(activities usecase.ActivityStore) usecase.GraphEventPublisher {
	return &directPublisher{activities: activities}
}

func (p *directPublisher) PublishGraphEvent(ctx context.Context, event models.GraphEvent) {
	ctx, cancel := util.NewTimeoutContext(ctx, recordTimeout)
	defer cancel()
	if err := p.activities.Create(ctx, toActivity(event)); err != nil {
		log.Errorw(ctx, "failed to record activity", "type", event.Type, "chat_id", event.ChatID, "error", err)
	}
}

func toActivity(event models.GraphEvent) *models.Activity {
	return &models.Activity{
		ChatID:    models.ObjectID(event.ChatID),
		UserID:    event.UserID,
		Action:    event.Type,
		NodeIDs:   event.NodeIDs,
		Data:      event.Data,
		CreatedAt: event.Timestamp,
	}
}
