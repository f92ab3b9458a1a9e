package workflow

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/dgplabs/dgpscan/internal/capture"
	"github.com/dgplabs/dgpscan/internal/inference"
	"github.com/dgplabs/dgpscan/internal/patient"
	"github.com/dgplabs/dgpscan/internal/report"
)

var (
	ErrBusy        = errors.New("workflow: analysis in progress")
	ErrNoImage     = errors.New("workflow: no image selected")
	ErrNotErrored  = errors.New("workflow: no error to dismiss")
	ErrNotReported = errors.New("workflow: no report available")
)

// Controller sequences upload, intake, inference and report for one user.
// At most one analysis runs at a time; Reset abandons it.
type Controller struct {
	analyzer inference.Analyzer
	previews *capture.Previews
	now      func() time.Time
	base     context.Context

	mu       sync.Mutex
	state    State
	gen      uint64
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

type Option func(*Controller)

// WithClock overrides the time source used to stamp reports.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithContext sets the parent of every analysis context. Cancelling it
// abandons whatever is in flight.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) { c.base = ctx }
}

func New(analyzer inference.Analyzer, previews *capture.Previews, opts ...Option) *Controller {
	c := &Controller{
		analyzer: analyzer,
		previews: previews,
		now:      time.Now,
		base:     context.Background(),
		state:    Idle{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SelectImage starts over with a new scan. Any previous record, result or
// error is dropped and the superseded preview released.
func (c *Controller) SelectImage(img capture.Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Mode() == ModeAnalyzing {
		return ErrBusy
	}
	c.releaseLocked()
	c.state = Selected{Scan: Scan{Image: img, Preview: c.previews.Create(img)}}
	return nil
}

// Submit records the patient and immediately starts the analysis.
func (c *Controller) Submit(rec patient.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sel, ok := c.state.(Selected)
	if !ok {
		if c.state.Mode() == ModeAnalyzing {
			return ErrBusy
		}
		return ErrNoImage
	}

	ctx, cancel := context.WithCancel(c.base)
	c.gen++
	c.cancel = cancel
	c.state = Analyzing{Scan: sel.Scan, Patient: rec}

	c.inflight.Add(1)
	go c.run(ctx, c.gen, sel.Scan, rec)
	return nil
}

func (c *Controller) run(ctx context.Context, gen uint64, scan Scan, rec patient.Record) {
	defer c.inflight.Done()

	result, err := c.analyzer.Analyze(ctx, scan.Image)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state.Mode() != ModeAnalyzing {
		log.Printf("workflow: dropping stale analysis outcome (generation %d, now %d)", gen, c.gen)
		return
	}
	c.cancel()
	c.cancel = nil

	if err != nil {
		c.state = Errored{Scan: scan, Patient: rec, Message: inference.UserMessage(err)}
		return
	}
	c.state = Reported{Scan: scan, Report: report.New(result, rec, c.now())}
}

// Dismiss clears the error and returns to the intake form, keeping the scan
// and prefilling the form with the record that failed.
func (c *Controller) Dismiss() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.state.(Errored)
	if !ok {
		return ErrNotErrored
	}
	rec := e.Patient
	c.state = Selected{Scan: e.Scan, Prefill: &rec}
	return nil
}

// Reset returns to Idle from any state. An analysis still in flight is
// cancelled and its outcome discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.releaseLocked()
	c.state = Idle{}
}

// Report returns the finished report, if any.
func (c *Controller) Report() (report.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.state.(Reported)
	if !ok {
		return report.Report{}, ErrNotReported
	}
	return r.Report, nil
}

// Wait blocks until no analysis goroutine is running.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

func (c *Controller) releaseLocked() {
	if scan, ok := scanOf(c.state); ok {
		c.previews.Revoke(scan.Preview)
	}
}
