package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jo-hoe/sicoem/internal/backend/database"
	"github.com/redis/go-redis/v9"
)

// PendingStore is the durable pending-upload list. Append and remove are atomic per task.
type PendingStore interface {
	AppendTask(ctx context.Context, task *database.UploadTask) error
	RemoveTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context) ([]*database.UploadTask, error)
}

// SQLitePendingStore keeps pending uploads in the local database.
type SQLitePendingStore struct {
	db database.DatabaseService
}

func NewSQLitePendingStore(db database.DatabaseService) *SQLitePendingStore {
	return &SQLitePendingStore{db: db}
}

func (s *SQLitePendingStore) AppendTask(_ context.Context, task *database.UploadTask) error {
	return s.db.AppendTask(task)
}

func (s *SQLitePendingStore) RemoveTask(_ context.Context, id string) error {
	return s.db.RemoveTask(id)
}

func (s *SQLitePendingStore) ListTasks(_ context.Context) ([]*database.UploadTask, error) {
	return s.db.ListTasks()
}

// RedisPendingStore keeps pending uploads as JSON values of a Redis list.
type RedisPendingStore struct {
	client *redis.Client
	key    string
}

const DefaultRedisKey = "sicoem:pending_uploads"

func NewRedisPendingStore(client *redis.Client, key string) *RedisPendingStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisPendingStore{client: client, key: key}
}

func (s *RedisPendingStore) AppendTask(ctx context.Context, task *database.UploadTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode upload task: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("failed to append upload task: %w", err)
	}
	return nil
}

func (s *RedisPendingStore) RemoveTask(ctx context.Context, id string) error {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read pending uploads: %w", err)
	}
	for _, value := range raw {
		var task database.UploadTask
		if err := json.Unmarshal([]byte(value), &task); err != nil {
			continue
		}
		if task.ID == id {
			return s.client.LRem(ctx, s.key, 1, value).Err()
		}
	}
	return nil
}

func (s *RedisPendingStore) ListTasks(ctx context.Context) ([]*database.UploadTask, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read pending uploads: %w", err)
	}
	tasks := make([]*database.UploadTask, 0, len(raw))
	for _, value := range raw {
		var task database.UploadTask
		if err := json.Unmarshal([]byte(value), &task); err != nil {
			return nil, fmt.Errorf("corrupt pending upload entry: %w", err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}
