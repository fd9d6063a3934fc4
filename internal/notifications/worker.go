package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	QueueSize         int
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	NumWorkers        int
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		QueueSize:         1000,
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        5 * time.Minute,
		BackoffMultiplier: 2.0,
		NumWorkers:        5,
	}
}

// Worker delivers queued notifications with a pool of goroutines.
// Failed sends are retried with exponential backoff.
type Worker struct {
	config     WorkerConfig
	dispatcher *Dispatcher
	renderer   *Renderer

	queue  chan *QueueItem
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	retries map[*time.Timer]struct{}
	// pending counts accepted items that are queued or being processed.
	pending int
}

// NewWorker creates a new notification worker.
func NewWorker(config WorkerConfig, dispatcher *Dispatcher, renderer *Renderer) *Worker {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultWorkerConfig().QueueSize
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	return &Worker{
		config:     config,
		dispatcher: dispatcher,
		renderer:   renderer,
		queue:      make(chan *QueueItem, config.QueueSize),
		stopCh:     make(chan struct{}),
		retries:    make(map[*time.Timer]struct{}),
	}
}

// Start launches worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting notification worker",
		"workers", w.config.NumWorkers,
		"queue_size", w.config.QueueSize,
		"max_attempts", w.config.MaxAttempts,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Stop stops all workers and cancels pending retries.
// Items still in the queue are discarded.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	for t := range w.retries {
		t.Stop()
	}
	w.retries = nil
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	slog.Info("notification worker stopped", "discarded", len(w.queue))
}

// Drain waits until every accepted item has been delivered or given up on,
// including scheduled retries, and then stops the worker. It returns ctx's
// error if that takes too long; the worker is stopped either way.
func (w *Worker) Drain(ctx context.Context) error {
	defer w.Stop()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for !w.idle() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain notifications: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (w *Worker) idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending == 0 && len(w.retries) == 0
}

// Enqueue adds an item without blocking. It returns ErrQueueFull when the
// queue has no room.
func (w *Worker) Enqueue(item *QueueItem) error {
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = w.config.MaxAttempts
	}

	w.mu.Lock()
	w.pending++
	w.mu.Unlock()

	return w.push(item)
}

// push queues an item already counted in pending.
func (w *Worker) push(item *QueueItem) error {
	select {
	case w.queue <- item:
		notificationQueueDepth.Set(float64(len(w.queue)))
		return nil
	default:
		w.done()
		notificationsDropped.Inc()
		return ErrQueueFull
	}
}

func (w *Worker) done() {
	w.mu.Lock()
	w.pending--
	w.mu.Unlock()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case item := <-w.queue:
			notificationQueueDepth.Set(float64(len(w.queue)))
			slog.Debug("processing notification", "worker", workerID, "item_id", item.ID)
			w.processItem(ctx, item)
			w.done()
		}
	}
}

func (w *Worker) processItem(ctx context.Context, item *QueueItem) {
	start := time.Now()
	channelType := item.Channel.Type

	subject, body, err := w.renderer.Render(channelType, item.Payload)
	if err != nil {
		slog.Error("failed to render", "item_id", item.ID, "error", err)
		recordNotificationSent(channelType, "failed")
		return
	}

	notification := Notification{
		To:      item.Channel.Target,
		Subject: subject,
		Body:    body,
		Payload: item.Payload,
	}

	err = w.dispatcher.SendToChannel(ctx, channelType, notification)
	duration := time.Since(start)

	if err != nil {
		w.handleSendError(item, err)
		return
	}

	recordNotificationSent(channelType, "success")
	recordNotificationDuration(channelType, duration)

	slog.Debug("notification sent",
		"item_id", item.ID,
		"channel_type", channelType,
		"service_id", item.Payload.Change.ServiceID,
		"duration", duration,
	)
}

func (w *Worker) handleSendError(item *QueueItem, err error) {
	item.Attempts++
	item.LastError = err.Error()
	channelType := item.Channel.Type

	slog.Warn("send failed",
		"item_id", item.ID,
		"channel_type", channelType,
		"attempt", item.Attempts,
		"max_attempts", item.MaxAttempts,
		"error", err,
	)

	if !isRetryable(err) {
		recordNotificationSent(channelType, "failed")
		return
	}

	if item.Attempts >= item.MaxAttempts {
		slog.Error("notification dropped",
			"item_id", item.ID,
			"error", fmt.Errorf("max attempts exceeded: %w", err),
		)
		recordNotificationSent(channelType, "failed")
		return
	}

	backoff := w.calculateBackoff(item.Attempts)
	if !w.scheduleRetry(item, backoff) {
		recordNotificationSent(channelType, "failed")
		return
	}
	recordNotificationSent(channelType, "retry")

	slog.Info("notification scheduled for retry",
		"item_id", item.ID,
		"backoff", backoff,
	)
}

// scheduleRetry puts the item back on the queue after backoff. It reports
// false when the worker is already stopping.
func (w *Worker) scheduleRetry(item *QueueItem, backoff time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}

	var timer *time.Timer
	timer = time.AfterFunc(backoff, func() {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		delete(w.retries, timer)
		w.pending++
		w.mu.Unlock()

		if err := w.push(item); err != nil {
			slog.Error("failed to requeue notification", "item_id", item.ID, "error", err)
		}
	})
	w.retries[timer] = struct{}{}
	return true
}

// calculateBackoff returns the delay before the given retry attempt.
func (w *Worker) calculateBackoff(attempt int) time.Duration {
	backoff := float64(w.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= w.config.BackoffMultiplier
	}

	if backoff > float64(w.config.MaxBackoff) {
		backoff = float64(w.config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	// Default: retry unknown errors
	return true
}

// RetryableError wraps an error and marks it as retryable or not.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a retryable error.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError creates a non-retryable error.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}
