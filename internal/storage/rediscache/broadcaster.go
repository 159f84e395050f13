// Package rediscache publishes task progress events over Redis pub/sub
// so companion processes (the web layer, CLIs) can stream job progress
// without polling the task table. When Redis is not configured the
// in-memory broadcaster in memory.go serves single-process deployments.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bobmcallan/signum/internal/common"
	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/models"
)

// ProgressChannel is the pub/sub channel carrying progress events
const ProgressChannel = "signum:task:progress"

// lastEventKeyPrefix stores the most recent snapshot per task so late
// subscribers can read current state without waiting for the next event
const lastEventKeyPrefix = "signum:task:last:"

// lastEventTTL bounds how long terminal snapshots linger
const lastEventTTL = 2 * time.Hour

// Broadcaster implements interfaces.ProgressBroadcaster on Redis
type Broadcaster struct {
	client *redis.Client
	logger *common.Logger
}

// NewBroadcaster connects to Redis and verifies the connection
func NewBroadcaster(logger *common.Logger, redisURL string) (*Broadcaster, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("addr", opts.Addr).Msg("Redis progress broadcaster initialized")
	return &Broadcaster{client: client, logger: logger}, nil
}

func (b *Broadcaster) Publish(ctx context.Context, event models.TaskProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}

	if err := b.client.Publish(ctx, ProgressChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish progress event: %w", err)
	}

	if err := b.client.Set(ctx, lastEventKeyPrefix+event.TaskID, payload, lastEventTTL).Err(); err != nil {
		b.logger.Debug().Str("task_id", event.TaskID).Err(err).Msg("Failed to store last progress snapshot")
	}
	return nil
}

// LastEvent returns the most recent published snapshot for a task, or
// nil when none is stored
func (b *Broadcaster) LastEvent(ctx context.Context, taskID string) (*models.TaskProgressEvent, error) {
	payload, err := b.client.Get(ctx, lastEventKeyPrefix+taskID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last progress snapshot: %w", err)
	}

	var event models.TaskProgressEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress snapshot: %w", err)
	}
	return &event, nil
}

func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan models.TaskProgressEvent, func(), error) {
	sub := b.client.Subscribe(ctx, ProgressChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to progress channel: %w", err)
	}

	events := make(chan models.TaskProgressEvent, 64)
	done := make(chan struct{})

	go func() {
		defer close(events)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var event models.TaskProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn().Err(err).Msg("Dropping malformed progress event")
					continue
				}
				select {
				case events <- event:
				default:
					// Slow subscriber; drop rather than block publishers
				}
			}
		}
	}()

	cancel := func() {
		close(done)
		sub.Close()
	}
	return events, cancel, nil
}

func (b *Broadcaster) Close() error {
	return b.client.Close()
}

// Compile-time check
var _ interfaces.ProgressBroadcaster = (*Broadcaster)(nil)
