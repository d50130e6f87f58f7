package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"replay/crumbs/internal/config"
	"replay/crumbs/internal/domain/task"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	fieldType = "task_type"
	fieldData = "task_data"
)

// Message is a task read from its stream
type Message struct {
	ID   string
	Def  task.Definition
	Data []byte
}

type Queue interface {
	AddTask(ctx context.Context, t task.Task) (string, error) // Returns message ID
	GetTask(ctx context.Context, consumer string, def task.Definition) (*Message, error)
	AckTask(ctx context.Context, msg *Message) error
	AutoClaim(ctx context.Context, consumer string, def task.Definition, minIdleTime time.Duration) ([]Message, error)
	EnsureStreamsExist(ctx context.Context) error
}

type RedisQueue struct {
	redisClient *redis.Client
	group       string
	maxLen      int64
	block       time.Duration
}

func NewRedisQueue(ctx context.Context, redisClient *redis.Client, cfg config.RedisConfig) (*RedisQueue, error) {
	q := &RedisQueue{
		redisClient: redisClient,
		group:       cfg.ConsumerGroup,
		maxLen:      cfg.StreamMaxLen,
		block:       5 * time.Second,
	}

	if err := q.EnsureStreamsExist(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure streams exist: %w", err)
	}

	return q, nil
}

// EnsureStreamsExist creates the stream and consumer group of every task definition
func (q *RedisQueue) EnsureStreamsExist(ctx context.Context) error {
	log.Info("🔧 Creating Redis streams and consumer groups...")

	for _, def := range task.Definitions {
		err := q.redisClient.XGroupCreateMkStream(ctx, def.Stream, q.group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group for %s: %w", def.Type, err)
		}

		log.Infof("✅ Stream %s and consumer group %s ready", def.Stream, q.group)
	}

	return nil
}

func (q *RedisQueue) AddTask(ctx context.Context, t task.Task) (string, error) {
	def, err := task.Lookup(t.TaskType())
	if err != nil {
		return "", err
	}

	taskValue, err := t.TaskValue()
	if err != nil {
		return "", fmt.Errorf("failed to serialize task: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: def.Stream,
		Values: map[string]interface{}{
			fieldType: def.Type,
			fieldData: string(taskValue),
		},
	}
	if q.maxLen > 0 {
		args.MaxLen = q.maxLen
		args.Approx = true
	}

	messageID, err := q.redisClient.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add task to Redis stream %s: %w", def.Stream, err)
	}

	log.Debugf("Added task %s to stream %s with message ID: %s", def.Type, def.Stream, messageID)
	return messageID, nil
}

// GetTask blocks until a new task arrives on the stream of def. It returns
// nil when nothing arrived in time.
func (q *RedisQueue) GetTask(ctx context.Context, consumer string, def task.Definition) (*Message, error) {
	result, err := q.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{def.Stream, ">"},
		Count:    1,
		Block:    q.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from Redis stream %s: %w", def.Stream, err)
	}

	if len(result) == 0 || len(result[0].Messages) == 0 {
		return nil, nil
	}

	msg, err := q.decode(ctx, def, result[0].Messages[0])
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (q *RedisQueue) AckTask(ctx context.Context, msg *Message) error {
	return q.redisClient.XAck(ctx, msg.Def.Stream, q.group, msg.ID).Err()
}

// AutoClaim takes over tasks that other consumers left pending for longer
// than minIdleTime.
func (q *RedisQueue) AutoClaim(
	ctx context.Context,
	consumer string,
	def task.Definition,
	minIdleTime time.Duration,
) ([]Message, error) {
	claimed, _, err := q.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   def.Stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  minIdleTime,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to claim messages from Redis stream %s: %w", def.Stream, err)
	}

	messages := make([]Message, 0, len(claimed))
	for _, raw := range claimed {
		msg, err := q.decode(ctx, def, raw)
		if err != nil {
			log.Errorf("❌ %v", err)
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// decode turns a stream entry into a Message. Entries that cannot be decoded
// are acknowledged so they are not claimed again.
func (q *RedisQueue) decode(ctx context.Context, def task.Definition, raw redis.XMessage) (Message, error) {
	taskType, _ := raw.Values[fieldType].(string)
	data, ok := raw.Values[fieldData].(string)

	var err error
	switch {
	case taskType != def.Type:
		err = fmt.Errorf("message %s on %s has task type %q, want %q", raw.ID, def.Stream, taskType, def.Type)
	case !ok:
		err = fmt.Errorf("message %s on %s has no task data", raw.ID, def.Stream)
	}
	if err != nil {
		if ackErr := q.redisClient.XAck(ctx, def.Stream, q.group, raw.ID).Err(); ackErr != nil {
			log.Errorf("❌ Failed to drop malformed message %s: %v", raw.ID, ackErr)
		}
		return Message{}, err
	}

	return Message{ID: raw.ID, Def: def, Data: []byte(data)}, nil
}
