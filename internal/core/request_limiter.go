package core

// request_limiter.go caps concurrent upstream import calls across sessions.
//
// The limiter is a semaphore. When every slot is taken a caller waits up to
// maxWait and then fails with ErrTooManyRequests, which wraps ErrTransport so
// the pipeline surfaces it like any other transport failure.

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ErrTooManyRequests is returned when no slot frees up within the wait time.
var ErrTooManyRequests = fmt.Errorf("%w: too many concurrent requests, please try again later", ErrTransport)

// DefaultMaxConcurrentRequests is the default limit for parallel upstream calls.
const DefaultMaxConcurrentRequests = 8

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 10 * time.Second

// RequestLimiter bounds concurrent upstream calls.
type RequestLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewRequestLimiter creates a limiter allowing maxConcurrent calls at once.
func NewRequestLimiter(maxConcurrent int, maxWait time.Duration) *RequestLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRequests
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &RequestLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot. The caller MUST call Release when the call returns.
func (l *RequestLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyRequests
	}
}

// Release frees a slot taken by Acquire.
func (l *RequestLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of calls holding a slot.
func (l *RequestLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until every slot is released or ctx is done.
func (l *RequestLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RequestLimiterStatus is a snapshot of the limiter.
type RequestLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *RequestLimiter) Status() RequestLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return RequestLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
