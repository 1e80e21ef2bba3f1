package service

import (
	"context"
	"time"
	"video-sentinel/dto"
)

const DefaultQueueSize = 500

// TaskQueue is the bounded FIFO between segmentation and the processor.
// Put blocks while the queue is full.
type TaskQueue struct {
	tasks chan dto.ChunkTask
}

func NewTaskQueue(size int) *TaskQueue {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &TaskQueue{tasks: make(chan dto.ChunkTask, size)}
}

func (q *TaskQueue) Put(ctx context.Context, task dto.ChunkTask) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get waits up to timeout for the next task. It returns false on timeout or cancellation.
func (q *TaskQueue) Get(ctx context.Context, timeout time.Duration) (dto.ChunkTask, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case task := <-q.tasks:
		return task, true
	case <-timer.C:
		return dto.ChunkTask{}, false
	case <-ctx.Done():
		return dto.ChunkTask{}, false
	}
}

// Clear drops every task that has not been picked up yet and returns how many were dropped.
func (q *TaskQueue) Clear() int {
	dropped := 0
	for {
		select {
		case <-q.tasks:
			dropped++
		default:
			return dropped
		}
	}
}

func (q *TaskQueue) Len() int {
	return len(q.tasks)
}
