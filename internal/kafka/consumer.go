package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"google.golang.org/grpc/codes"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/usecase"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/logger"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/util"
)

type HandleFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// StartConsumeGraphEvents records graph events from the topic as activities.
func StartConsumeGraphEvents(
	sd fx.Shutdowner,
	lc fx.Lifecycle,
	conf *config.Config,
	activities usecase.ActivityStore,
) error {
	if !conf.Kafka.Enabled {
		log.Warnf(context.Background(), "Kafka consumer is disabled in configuration")
		return nil
	}

	group, err := sarama.NewConsumerGroup(conf.Kafka.Brokers, conf.Kafka.GroupID, newSaramaConfig())
	if err != nil {
		return fmt.Errorf("new consumer group: %w", err)
	}
	metrics, err := util.GetHistogramVec("kafka_messages_consumed", "status", "topic", "group")
	if err != nil {
		return fmt.Errorf("get histogram vec: %w", err)
	}

	handler := &groupHandler{
		groupID:        conf.Kafka.GroupID,
		metrics:        metrics,
		consumeTimeout: 30 * time.Second,
		handle:         RecordActivity(activities),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				for ctx.Err() == nil {
					err := group.Consume(ctx, []string{conf.Kafka.Topic}, handler)
					if errors.Is(err, sarama.ErrClosedConsumerGroup) {
						return
					}
					if err != nil {
						log.Errorw(ctx, "consumer group stopped", "error", err)
						_ = sd.Shutdown()
						return
					}
				}
			}()
			go func() {
				for err := range group.Errors() {
					log.Warnw(ctx, "consumer group error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			err := group.Close()
			<-done
			return err
		},
	})
	return nil
}

// RecordActivity stores each graph event as an activity row.
func RecordActivity(activities usecase.ActivityStore) HandleFunc {
	return func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		var event models.GraphEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("unmarshal graph event: %w: %w", models.ErrValidation, err)
		}
		if event.ChatID == "" || !event.Type.Valid() {
			return fmt.Errorf("graph event without chat or type: %w", models.ErrValidation)
		}
		return activities.Create(ctx, toActivity(event))
	}
}

type groupHandler struct {
	groupID        string
	metrics        *prometheus.HistogramVec
	consumeTimeout time.Duration
	handle         HandleFunc
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.processMessage(sess.Context(), msg)
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

func (h *groupHandler) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) {
	start := time.Now()
	lagMs := start.Sub(msg.Timestamp).Milliseconds()

	err := h.run(ctx, msg)
	duration := time.Since(start)

	code := models.Code(err)
	content := "success"
	if err != nil {
		content = err.Error()
	}

	level := getLogLevel(code)
	log.Logw(ctx, level, content,
		"code", code,
		"duration_ms", duration.Milliseconds(),
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"lag_ms", lagMs,
		"key", string(msg.Key),
		"value", json.RawMessage(msg.Value),
	)

	h.metrics.
		WithLabelValues(code.String(), msg.Topic, h.groupID).
		Observe(duration.Seconds())
}

func (h *groupHandler) run(ctx context.Context, msg *sarama.ConsumerMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			length := runtime.Stack(stack, false)
			err = fmt.Errorf("PANIC RECOVER: %+v / %s", r, string(stack[:length]))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, h.consumeTimeout)
	defer cancel()
	return h.handle(ctx, msg)
}

func getLogLevel(code codes.Code) logger.Level {
	switch code {
	case codes.OK:
		return logger.InfoLevel
	case codes.Canceled,
		codes.InvalidArgument,
		codes.NotFound,
		codes.AlreadyExists,
		codes.PermissionDenied,
		codes.Unauthenticated,
		codes.ResourceExhausted,
		codes.FailedPrecondition,
		codes.Aborted,
		codes.Unimplemented,
		codes.OutOfRange:
		return logger.WarnLevel
	default:
		return logger.ErrorLevel
	}
}
