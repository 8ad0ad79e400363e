package stream

import (
	"context"
	"errors"
	"fmt"

	"dropified/tracksync/internal/config"
	"dropified/tracksync/internal/domain"
	"dropified/tracksync/internal/domain/event"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const defaultMaxLen = 10000

// Entry is one event read back from a store's progress stream.
type Entry struct {
	ID    string      `json:"id"`
	Type  string      `json:"type"`
	Event event.Event `json:"event"`
}

// Stream publishes run progress to a Redis stream per store so other
// services can follow syncs without polling the API.
type Stream interface {
	Publish(ctx context.Context, storeID string, e event.Event) (string, error) // Returns message ID
	ReadSince(ctx context.Context, storeID, afterID string, count int64) ([]Entry, error)
	RowSettled(ctx context.Context, storeID string, row domain.ProgressRow)
	RunFinished(ctx context.Context, summary domain.Summary)
}

type RedisStream struct {
	redisClient  *redis.Client
	streamPrefix string
	maxLen       int64
}

func NewRedisStream(redisClient *redis.Client, cfg config.RedisConfig) *RedisStream {
	maxLen := cfg.StreamMaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &RedisStream{
		redisClient:  redisClient,
		streamPrefix: "tracksync:stream:",
		maxLen:       maxLen,
	}
}

func (s *RedisStream) streamName(storeID string) string {
	return s.streamPrefix + storeID
}

func (s *RedisStream) Publish(ctx context.Context, storeID string, e event.Event) (string, error) {
	eventType := e.EventType()
	streamName := s.streamName(storeID)

	value, err := e.EventValue()
	if err != nil {
		return "", fmt.Errorf("failed to serialize event: %w", err)
	}

	// Fields: event_type, event_data
	messageID, err := s.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event_type": eventType,
			"event_data": string(value),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add event to Redis stream %s: %w", streamName, err)
	}

	log.Debugf("Added %s event to stream %s with message ID: %s", eventType, streamName, messageID)
	return messageID, nil
}

// ReadSince returns up to count events after afterID. An empty afterID reads
// from the start of the stream.
func (s *RedisStream) ReadSince(ctx context.Context, storeID, afterID string, count int64) ([]Entry, error) {
	start := "-"
	if afterID != "" {
		start = "(" + afterID
	}
	if count <= 0 {
		count = 100
	}

	streamName := s.streamName(storeID)
	messages, err := s.redisClient.XRangeN(ctx, streamName, start, "+", count).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read Redis stream %s: %w", streamName, err)
	}

	entries := make([]Entry, 0, len(messages))
	for _, msg := range messages {
		eventType, _ := msg.Values["event_type"].(string)
		data, _ := msg.Values["event_data"].(string)

		e, err := event.Decode(eventType, []byte(data))
		if err != nil {
			log.Warnf("⚠️ Skipping malformed message %s in %s: %v", msg.ID, streamName, err)
			continue
		}
		entries = append(entries, Entry{ID: msg.ID, Type: eventType, Event: e})
	}
	return entries, nil
}

func (s *RedisStream) RowSettled(ctx context.Context, storeID string, row domain.ProgressRow) {
	if _, err := s.Publish(ctx, storeID, &event.RowSettled{StoreID: storeID, Row: row}); err != nil {
		log.Warnf("⚠️ Failed to publish row for order %s: %v", row.OrderID, err)
	}
}

func (s *RedisStream) RunFinished(ctx context.Context, summary domain.Summary) {
	if _, err := s.Publish(ctx, summary.StoreID, &event.RunFinished{Summary: summary}); err != nil {
		log.Warnf("⚠️ Failed to publish summary of run %s: %v", summary.RunID, err)
	}
}
