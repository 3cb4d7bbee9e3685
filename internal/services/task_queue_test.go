package services

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTaskType_Constants(t *testing.T) {
	if TaskTypeSweepExpired != "token:sweep_expired" {
		t.Errorf("TaskTypeSweepExpired = %q, expected %q", TaskTypeSweepExpired, "token:sweep_expired")
	}
	if TaskTypeRevokeAll != "token:revoke_all" {
		t.Errorf("TaskTypeRevokeAll = %q, expected %q", TaskTypeRevokeAll, "token:revoke_all")
	}
}

func TestNewSweepTask(t *testing.T) {
	task := NewSweepTask()

	if task.Type != TaskTypeSweepExpired {
		t.Errorf("Type = %q, expected %q", task.Type, TaskTypeSweepExpired)
	}
	if task.ID == "" {
		t.Error("sweep task should carry a correlation ID")
	}
	if task.UserID != 0 {
		t.Errorf("UserID = %d, expected 0 (all users)", task.UserID)
	}
}

func TestNewRevokeAllTask(t *testing.T) {
	task := NewRevokeAllTask(7)

	if task.Type != TaskTypeRevokeAll {
		t.Errorf("Type = %q, expected %q", task.Type, TaskTypeRevokeAll)
	}
	if task.UserID != 7 {
		t.Errorf("UserID = %d, expected 7", task.UserID)
	}
	if task.ID == "" {
		t.Error("revoke-all task should carry a correlation ID")
	}
}

func TestSyncQueue_New(t *testing.T) {
	queue := NewSyncQueue()
	if queue == nil {
		t.Error("NewSyncQueue should not return nil")
	}
}

func TestSyncQueue_IsAsync(t *testing.T) {
	queue := NewSyncQueue()
	if queue.IsAsync() {
		t.Error("SyncQueue.IsAsync() should return false")
	}
}

func TestSyncQueue_Close(t *testing.T) {
	queue := NewSyncQueue()
	err := queue.Close()
	if err != nil {
		t.Errorf("SyncQueue.Close() should return nil, got %v", err)
	}
}

func TestSyncQueue_EnqueueWithoutProcessor(t *testing.T) {
	queue := NewSyncQueue()
	err := queue.Enqueue(NewSweepTask())
	if err != nil {
		t.Errorf("Enqueue without processor should not error, got %v", err)
	}
}

func TestSyncQueue_ProcessesTask(t *testing.T) {
	queue := NewSyncQueue()

	var mu sync.Mutex
	var got *TokenTask
	done := make(chan struct{})

	queue.SetProcessor(func(ctx context.Context, task *TokenTask) error {
		mu.Lock()
		got = task
		mu.Unlock()
		close(done)
		return nil
	})

	task := NewRevokeAllTask(3)
	if err := queue.Enqueue(task); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("processor was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.Type != TaskTypeRevokeAll || got.UserID != 3 {
		t.Errorf("processed task = %+v, expected revoke-all for user 3", got)
	}
}

func TestAsyncQueue_IsAsync(t *testing.T) {
	queue := &AsyncQueue{}
	if !queue.IsAsync() {
		t.Error("AsyncQueue.IsAsync() should return true")
	}
}
