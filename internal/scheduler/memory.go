package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

type jobHeap []Job

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].DueAt.Before(h[j].DueAt) }
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)        { *h = append(*h, x.(Job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	*h = old[:n-1]
	return j
}

// Memory keeps jobs in process. Pending jobs are lost on restart.
type Memory struct {
	mu   sync.Mutex
	jobs jobHeap
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Schedule(_ context.Context, job Job) error {
	m.mu.Lock()
	heap.Push(&m.jobs, job)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Claim(_ context.Context, now time.Time) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []Job
	for m.jobs.Len() > 0 && !m.jobs[0].DueAt.After(now) {
		due = append(due, heap.Pop(&m.jobs).(Job))
	}
	return due, nil
}

// Pending returns the number of queued jobs.
func (m *Memory) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs.Len()
}

func (m *Memory) Close() error { return nil }
