package mailq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Kind selects the email template.
type Kind int

const (
	KindVerification Kind = iota + 1
	KindPasswordReset
)

func (k Kind) String() string {
	switch k {
	case KindVerification:
		return "verification"
	case KindPasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

// Job is one email to send.
type Job struct {
	Kind      Kind
	AccountID string
	Email     string
	Token     string
}

// Sender delivers emails.
type Sender interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// Config controls the worker pool.
type Config struct {
	Workers     int
	BufferSize  int
	SendTimeout time.Duration
}

// Stats are cumulative dispatcher counters.
type Stats struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
}

// Dispatcher sends queued jobs asynchronously.
type Dispatcher struct {
	cfg       Config
	sender    Sender
	logger    *slog.Logger
	onFailure func(Job, error)

	ch        chan Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// New starts a dispatcher. onFailure may be nil.
func New(cfg Config, sender Sender, logger *slog.Logger, onFailure func(Job, error)) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:       cfg,
		sender:    sender,
		logger:    logger.With("component", "mailq"),
		onFailure: onFailure,
		ch:        make(chan Job, cfg.BufferSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Enqueue queues job without blocking. It returns false when the job was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(job Job) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return false
	}

	select {
	case d.ch <- job:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("email queue full, dropping job", "kind", job.Kind.String(), "account_id", job.AccountID)
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to be sent or for
// ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the cumulative counters.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{Sent: d.sent.Load(), Failed: d.failed.Load(), Dropped: d.dropped.Load()}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for job := range d.ch {
		d.send(job)
	}
}

func (d *Dispatcher) send(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	err := d.deliver(ctx, job)
	if err == nil {
		d.sent.Add(1)
		return
	}

	d.failed.Add(1)
	d.logger.Warn("email send failed", "kind", job.Kind.String(), "account_id", job.AccountID, "error", err)
	if d.onFailure != nil {
		d.onFailure(job, err)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mailq: sender panic: %v", r)
		}
	}()

	switch job.Kind {
	case KindVerification:
		return d.sender.SendVerificationEmail(ctx, job.Email, job.Token)
	case KindPasswordReset:
		return d.sender.SendPasswordResetEmail(ctx, job.Email, job.Token)
	default:
		return errors.New("mailq: unknown job kind")
	}
}
