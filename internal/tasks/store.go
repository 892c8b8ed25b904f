package tasks

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/desertthunder/vqa/internal/models"
)

// Store persists the full tracked set.
type Store interface {
	Load(ctx context.Context) ([]models.Task, error)
	Save(ctx context.Context, tasks []models.Task) error
}

// MemoryStore keeps the serialized set in memory. Data is stored as JSON so corruption can be
// simulated with [MemoryStore.SetRaw].
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (m *MemoryStore) Load(context.Context) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) == 0 {
		return nil, nil
	}
	return DecodeTasks(m.data)
}

func (m *MemoryStore) Save(_ context.Context, tasks []models.Task) error {
	data, err := EncodeTasks(tasks)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	m.saves++
	return nil
}

// SetRaw replaces the stored bytes.
func (m *MemoryStore) SetRaw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = slices.Clone(data)
}

// Saves returns how many times Save succeeded.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// EncodeTasks serializes tasks as a JSON list.
func EncodeTasks(tasks []models.Task) ([]byte, error) {
	if tasks == nil {
		tasks = []models.Task{}
	}
	return json.Marshal(tasks)
}

// DecodeTasks parses a JSON list written by [EncodeTasks]. Failures are [*StorageError].
func DecodeTasks(data []byte) ([]models.Task, error) {
	var tasks []models.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, &StorageError{Err: err}
	}
	return tasks, nil
}
