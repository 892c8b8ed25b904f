package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/tasks"
)

// DefaultTaskKey is the key the tracked task set is stored under.
const DefaultTaskKey = "activeAnalysisTasks"

// TaskStore implements tasks.Store on a single kv_store row.
type TaskStore struct {
	kv  *KVRepository
	key string
}

// NewTaskStore creates a store writing under key, or [DefaultTaskKey] when key is empty.
func NewTaskStore(kv *KVRepository, key string) *TaskStore {
	if key == "" {
		key = DefaultTaskKey
	}
	return &TaskStore{kv: kv, key: key}
}

// Load returns the stored set. A missing row is an empty set; an undecodable row is a
// [*tasks.StorageError].
func (s *TaskStore) Load(ctx context.Context) ([]models.Task, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &tasks.StorageError{Err: err}
	}
	return tasks.DecodeTasks([]byte(raw))
}

// Save replaces the stored set.
func (s *TaskStore) Save(ctx context.Context, list []models.Task) error {
	data, err := tasks.EncodeTasks(list)
	if err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}
	return s.kv.Put(ctx, s.key, string(data))
}
