package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

type scheduledJob struct {
	job RefundJob
	due time.Time
}

type claimedJob struct {
	jobID string
	until time.Time
}

type memoryQueue struct {
	mu        sync.Mutex
	lease     time.Duration
	scheduled map[string]scheduledJob
	claimed   map[string]claimedJob
}

// NewMemoryRefundQueue returns a process-local RefundQueue. Jobs do not
// survive a restart; the maintenance requeue command recovers them from storage.
func NewMemoryRefundQueue(lease time.Duration) RefundQueue {
	return &memoryQueue{
		lease:     lease,
		scheduled: make(map[string]scheduledJob),
		claimed:   make(map[string]claimedJob),
	}
}

func (q *memoryQueue) Enqueue(_ context.Context, job RefundJob, at time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.scheduled[job.BookingID]; exists {
		return false, nil
	}
	if claim, ok := q.claimed[job.BookingID]; ok && claim.until.After(at) {
		return false, nil
	}
	delete(q.claimed, job.BookingID)
	q.scheduled[job.BookingID] = scheduledJob{job: job, due: at}
	return true, nil
}

func (q *memoryQueue) ClaimDue(_ context.Context, now time.Time, limit int) ([]RefundJob, error) {
	if limit <= 0 {
		limit = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	due := make([]scheduledJob, 0)
	for _, entry := range q.scheduled {
		if !entry.due.After(now) {
			due = append(due, entry)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	if len(due) > limit {
		due = due[:limit]
	}

	jobs := make([]RefundJob, 0, len(due))
	for _, entry := range due {
		delete(q.scheduled, entry.job.BookingID)
		q.claimed[entry.job.BookingID] = claimedJob{jobID: entry.job.ID, until: now.Add(q.lease)}
		jobs = append(jobs, entry.job)
	}
	return jobs, nil
}

func (q *memoryQueue) Retry(_ context.Context, job RefundJob, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.claimed, job.BookingID)
	q.scheduled[job.BookingID] = scheduledJob{job: job, due: at}
	return nil
}

func (q *memoryQueue) Complete(_ context.Context, job RefundJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if claim, ok := q.claimed[job.BookingID]; ok && claim.jobID == job.ID {
		delete(q.claimed, job.BookingID)
	}
	return nil
}

func (q *memoryQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.scheduled)), nil
}
