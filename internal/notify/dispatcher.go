package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"loadpay/internal/external"
	"loadpay/internal/payment"
)

// MethodResolver is the subset of the payment package the dispatcher needs
// to enrich a queued payment with its method descriptor.
type MethodResolver interface {
	Resolve(ctx context.Context, paymentID string) payment.MethodDescriptor
}

// job is one queued notification unit of work.
type job struct {
	ID      string
	Payment *payment.CompletedPayment
}

// Dispatcher owns the fire-and-forget half of the pipeline: the webhook
// handler enqueues a CompletedPayment and returns immediately; a background
// worker resolves the payment method, renders the message, and delivers it.
// Nothing on the delivery path ever propagates back to the webhook response.
//
// Redelivered webhook events are suppressed by an in-memory TTL seen-set
// keyed on payment id: within the window a duplicate enqueue is dropped, so
// each real payment notifies at most once per process lifetime + TTL.
type Dispatcher struct {
	queue    chan job
	resolver MethodResolver
	renderer *Renderer
	provider external.MailProvider
	to       string
	logger   *slog.Logger

	seen *seenSet
}

// DispatcherConfig holds the parameters needed to construct a Dispatcher.
type DispatcherConfig struct {
	Resolver  MethodResolver
	Renderer  *Renderer
	Provider  external.MailProvider
	Recipient string
	QueueSize int
	DedupeTTL time.Duration
	Logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. Run must be called for queued payments
// to be processed.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	return &Dispatcher{
		queue:    make(chan job, queueSize),
		resolver: cfg.Resolver,
		renderer: cfg.Renderer,
		provider: cfg.Provider,
		to:       cfg.Recipient,
		logger:   logger,
		seen:     newSeenSet(ttl),
	}
}

// Enqueue hands a payment to the background worker and returns immediately.
// It never blocks: a full queue drops the job with an error log rather than
// stalling the webhook response. The return value reports whether the
// payment was accepted (false means duplicate or queue full); callers
// acknowledge the webhook either way.
func (d *Dispatcher) Enqueue(p *payment.CompletedPayment) bool {
	if !d.seen.markIfNew(p.PaymentID) {
		d.logger.Info("duplicate payment delivery suppressed",
			"payment_id", p.PaymentID,
		)
		return false
	}

	j := job{ID: uuid.NewString(), Payment: p}

	select {
	case d.queue <- j:
		d.logger.Info("notification enqueued",
			"job_id", j.ID,
			"payment_id", p.PaymentID,
		)
		return true
	default:
		// Losing a notification beats stalling the webhook path. The seen
		// mark is rolled back so a provider redelivery can still get through.
		d.seen.forget(p.PaymentID)
		d.logger.Error("notification queue full; dropping job",
			"job_id", j.ID,
			"payment_id", p.PaymentID,
		)
		return false
	}
}

// Run processes queued jobs until ctx is cancelled, then drains whatever is
// already buffered before returning. Intended to be managed by the entry
// point's errgroup.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		case j := <-d.queue:
			d.process(ctx, j)
		}
	}
}

// drain processes buffered jobs with a fresh background context so shutdown
// does not silently discard accepted notifications.
func (d *Dispatcher) drain() {
	for {
		select {
		case j := <-d.queue:
			d.process(context.Background(), j)
		default:
			return
		}
	}
}

// process runs the enrichment and delivery for a single job. Every failure
// path logs and returns; a delivery failure is terminal for the job.
func (d *Dispatcher) process(ctx context.Context, j job) {
	method := d.resolver.Resolve(ctx, j.Payment.PaymentID)

	if j.Payment.AmountMismatch() {
		d.logger.Warn("metadata amounts do not reconcile with charged total",
			"job_id", j.ID,
			"payment_id", j.Payment.PaymentID,
			"deposit", j.Payment.DepositAmount,
			"fee", j.Payment.ConvenienceFee,
			"total", j.Payment.TotalPaid,
		)
	}

	rendered, err := d.renderer.Render(j.Payment, method)
	if err != nil {
		d.logger.Error("notification render failed",
			"job_id", j.ID,
			"payment_id", j.Payment.PaymentID,
			"error", err,
		)
		return
	}

	msg := external.MailMessage{
		To:       d.to,
		Subject:  rendered.Subject,
		TextBody: rendered.TextBody,
		HTMLBody: rendered.HTMLBody,
	}

	if err := d.provider.Send(ctx, msg); err != nil {
		d.logger.Error("notification delivery failed",
			"job_id", j.ID,
			"payment_id", j.Payment.PaymentID,
			"error", err,
		)
		return
	}

	d.logger.Info("payment notification sent",
		"job_id", j.ID,
		"payment_id", j.Payment.PaymentID,
		"username", j.Payment.Username,
	)
}

// ---------------------------------------------------------------------------
// TTL seen-set
// ---------------------------------------------------------------------------

// seenSet remembers payment ids for a bounded window. Expired entries are
// pruned opportunistically on each markIfNew call; the set never grows past
// the number of payments seen within one TTL.
type seenSet struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time // for testability
}

func newSeenSet(ttl time.Duration) *seenSet {
	return &seenSet{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// markIfNew records the id and returns true if it was not already present
// within the TTL window.
func (s *seenSet) markIfNew(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, at := range s.entries {
		if now.Sub(at) > s.ttl {
			delete(s.entries, k)
		}
	}

	if at, ok := s.entries[id]; ok && now.Sub(at) <= s.ttl {
		return false
	}
	s.entries[id] = now
	return true
}

// forget removes an id, allowing a later redelivery to pass dedupe.
func (s *seenSet) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}
