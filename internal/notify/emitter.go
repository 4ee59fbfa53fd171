package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/db"
)

// Sink delivers alerts (email, webhook, etc.).
type Sink interface {
	Name() string
	Deliver(context.Context, *Alert) error
	Close(context.Context) error
}

// AuditStore records delivery outcomes. *db.DB satisfies it.
type AuditStore interface {
	InsertAlertAudit(ctx context.Context, a *db.AlertAudit) error
}

// Metrics holds counters for alert delivery.
type Metrics struct {
	Enqueued    uint64
	Dropped     uint64
	SinkSuccess map[string]uint64
	SinkFailure map[string]uint64
}

// EmitterConfig controls worker and queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	DeliverTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Emitter buffers alerts and delivers them to every sink on worker goroutines.
type Emitter struct {
	queue           chan *Alert
	sinks           []Sink
	audit           AuditStore
	logger          *slog.Logger
	deliverTimeout  time.Duration
	shutdownTimeout time.Duration

	mu        sync.RWMutex
	metricsMu sync.Mutex
	metrics   Metrics
	closed    bool
	wg        sync.WaitGroup
}

// NewEmitter starts background workers. audit may be nil.
func NewEmitter(cfg EmitterConfig, sinks []Sink, audit AuditStore, logger *slog.Logger) *Emitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	e := &Emitter{
		queue:           make(chan *Alert, cfg.QueueSize),
		sinks:           sinks,
		audit:           audit,
		logger:          logger,
		deliverTimeout:  cfg.DeliverTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		metrics: Metrics{
			SinkSuccess: make(map[string]uint64, len(sinks)),
			SinkFailure: make(map[string]uint64, len(sinks)),
		},
	}
	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Emit enqueues the alert without blocking. A full queue drops it.
func (e *Emitter) Emit(a *Alert) bool {
	if e == nil || a == nil {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.count(func(m *Metrics) { m.Dropped++ })
		return false
	}

	select {
	case e.queue <- a:
		e.count(func(m *Metrics) { m.Enqueued++ })
		return true
	default:
		e.count(func(m *Metrics) { m.Dropped++ })
		e.logger.Warn("alert queue full, dropping alert", "scan_id", a.ScanID, "url", a.URL)
		return false
	}
}

// Close stops accepting alerts and waits briefly for the queue to drain.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-waitCtx.Done():
		e.logger.Warn("alert queue not drained before shutdown")
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			e.logger.Error("sink close failed", "sink", s.Name(), "err", err)
		}
	}
}

// Metrics copies the current counters.
func (e *Emitter) Metrics() Metrics {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	out := Metrics{
		Enqueued:    e.metrics.Enqueued,
		Dropped:     e.metrics.Dropped,
		SinkSuccess: make(map[string]uint64, len(e.metrics.SinkSuccess)),
		SinkFailure: make(map[string]uint64, len(e.metrics.SinkFailure)),
	}
	for k, v := range e.metrics.SinkSuccess {
		out.SinkSuccess[k] = v
	}
	for k, v := range e.metrics.SinkFailure {
		out.SinkFailure[k] = v
	}
	return out
}

func (e *Emitter) count(f func(*Metrics)) {
	e.metricsMu.Lock()
	f(&e.metrics)
	e.metricsMu.Unlock()
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for a := range e.queue {
		e.deliver(a)
	}
}

// errNoSinks is recorded when an alert has nowhere to go.
const errNoSinks = "no sinks configured"

func (e *Emitter) deliver(a *Alert) {
	if len(e.sinks) == 0 {
		e.logger.Warn("alert logged locally",
			"to", a.Recipient, "url", a.URL, "risk_score", a.RiskScore,
			"level", a.Level, "scan_id", a.ScanID, "reason", errNoSinks)
		e.record(&db.AlertAudit{
			ScanID:    a.ScanID,
			Recipient: a.Recipient,
			URL:       a.URL,
			Score:     a.RiskScore,
			Status:    db.AlertLocalLog,
			Error:     errNoSinks,
		})
		return
	}
	for _, s := range e.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), e.deliverTimeout)
		err := s.Deliver(ctx, a)
		cancel()

		entry := &db.AlertAudit{
			ScanID:    a.ScanID,
			Recipient: a.Recipient,
			URL:       a.URL,
			Score:     a.RiskScore,
			Status:    db.AlertSent,
			Sink:      s.Name(),
		}
		if err != nil {
			e.count(func(m *Metrics) { m.SinkFailure[s.Name()]++ })
			entry.Status = db.AlertLocalLog
			entry.Error = err.Error()
			e.logger.Warn("alert delivery failed, logged locally",
				"sink", s.Name(), "to", a.Recipient, "url", a.URL,
				"risk_score", a.RiskScore, "scan_id", a.ScanID, "err", err)
		} else {
			e.count(func(m *Metrics) { m.SinkSuccess[s.Name()]++ })
			e.logger.Info("alert delivered", "sink", s.Name(), "scan_id", a.ScanID, "level", a.Level)
		}
		e.record(entry)
	}
}

func (e *Emitter) record(entry *db.AlertAudit) {
	if e.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.audit.InsertAlertAudit(ctx, entry); err != nil {
		e.logger.Error("alert audit write failed", "scan_id", entry.ScanID, "err", err)
	}
}
