package mutation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ParseMode says which path produced a result.
type ParseMode string

const (
	ParseModeSync       ParseMode = "sync"
	ParseModeBackground ParseMode = "background"
	ParseModeSummary    ParseMode = "summary"
)

// DispatcherState is the authoring-session state machine:
// Idle → Parsing → (Ready | Superseded).
type DispatcherState int32

const (
	StateIdle DispatcherState = iota
	StateParsing
	StateReady
	StateSuperseded
)

func (s DispatcherState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsing:
		return "parsing"
	case StateReady:
		return "ready"
	case StateSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// DispatcherConfig sets the size thresholds and debounce for live authoring.
type DispatcherConfig struct {
	// SyncThreshold is the input size (bytes) at or below which parsing runs
	// inline on the caller's execution context.
	SyncThreshold int
	// SummaryThreshold is the input size above which full structural linting
	// is replaced by a read-only summary.
	SummaryThreshold int
	// DebounceInterval delays background parses so rapid edits coalesce.
	DebounceInterval time.Duration
	// MaxSummaryErrors caps the errors carried by a summary.
	MaxSummaryErrors int
	// OnSuperseded, when set, is invoked once for every discarded stale
	// result or request.
	OnSuperseded func()
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		SyncThreshold:    64 * 1024,
		SummaryThreshold: 4 * 1024 * 1024,
		DebounceInterval: 150 * time.Millisecond,
		MaxSummaryErrors: 20,
	}
}

// ParseResult is the outcome of one parse request. Exactly one of Batch or
// Summary is set, depending on Mode.
type ParseResult struct {
	Seq     uint64
	Mode    ParseMode
	Batch   *Batch
	Summary *Summary
	Elapsed time.Duration
}

type parseRequest struct {
	seq  uint64
	text string
}

// Dispatcher chooses synchronous vs. background parsing by input size and
// keeps live-authoring feedback correct under rapid edits.
//
// Each request carries a monotonically increasing sequence number; a result
// whose sequence number is no longer the latest issued is discarded on
// arrival (last-request-wins). Superseded in-flight work is abandoned rather
// than cancelled mid-flight: parsing is a pure function of the input text, so
// ignoring a stale result is all the cancellation that is needed. Parse
// failures are reported, never retried.
type Dispatcher struct {
	validator *Validator
	config    *DispatcherConfig
	onResult  func(*ParseResult)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	requests chan parseRequest

	seq        atomic.Uint64
	state      atomic.Int32
	superseded atomic.Int64

	// Debounce state for background submissions.
	debounceMu    sync.Mutex
	debounceTimer *time.Timer
	pending       *parseRequest

	closed atomic.Bool
}

// NewDispatcher creates a dispatcher and starts its worker. onResult receives
// every honored result, including synchronous ones; it may be nil when the
// caller only uses the return value of Submit.
func NewDispatcher(validator *Validator, config *DispatcherConfig, onResult func(*ParseResult)) *Dispatcher {
	if config == nil {
		config = DefaultDispatcherConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		validator: validator,
		config:    config,
		onResult:  onResult,
		ctx:       ctx,
		cancel:    cancel,
		requests:  make(chan parseRequest, 1),
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

// Submit issues a parse request for the current text of an editing session.
//
// Small inputs are parsed inline and the result returned directly, so the
// caller has diagnostics before its next step. Larger inputs go to the
// background worker after the debounce interval and Submit returns nil; the
// result, if not superseded by a newer Submit, arrives via onResult.
func (d *Dispatcher) Submit(text string) *ParseResult {
	if d.closed.Load() {
		return nil
	}
	seq := d.seq.Add(1)

	if len(text) <= d.config.SyncThreshold {
		d.state.Store(int32(StateParsing))
		result := d.parse(seq, text)
		if seq != d.seq.Load() {
			d.state.Store(int32(StateSuperseded))
			d.noteSuperseded()
			return nil
		}
		d.state.Store(int32(StateReady))
		d.deliver(result)
		return result
	}

	d.scheduleBackground(parseRequest{seq: seq, text: text})
	return nil
}

// State returns the current session state.
func (d *Dispatcher) State() DispatcherState {
	return DispatcherState(d.state.Load())
}

// SupersededCount returns how many results were discarded as stale.
func (d *Dispatcher) SupersededCount() int64 {
	return d.superseded.Load()
}

// Close stops the worker and drops any pending request.
func (d *Dispatcher) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.debounceMu.Lock()
	if d.debounceTimer != nil {
		d.debounceTimer.Stop()
	}
	d.pending = nil
	d.debounceMu.Unlock()

	d.cancel()
	d.wg.Wait()
}

// scheduleBackground coalesces rapid edits: each new request replaces the
// pending one, and the debounce timer restarts.
func (d *Dispatcher) scheduleBackground(req parseRequest) {
	d.debounceMu.Lock()
	defer d.debounceMu.Unlock()

	d.pending = &req
	if d.debounceTimer == nil {
		d.debounceTimer = time.AfterFunc(d.config.DebounceInterval, d.flushPending)
	} else {
		d.debounceTimer.Reset(d.config.DebounceInterval)
	}
}

func (d *Dispatcher) flushPending() {
	d.debounceMu.Lock()
	req := d.pending
	d.pending = nil
	d.debounceMu.Unlock()

	if req == nil || d.closed.Load() {
		return
	}

	// Buffer of one: a queued request that was never picked up is stale by
	// definition, so drop it in favor of the new one.
	for {
		select {
		case d.requests <- *req:
			return
		default:
			select {
			case <-d.requests:
			default:
			}
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case req := <-d.requests:
			if req.seq != d.seq.Load() {
				d.noteSuperseded()
				continue
			}
			d.state.Store(int32(StateParsing))
			result := d.parse(req.seq, req.text)
			if req.seq != d.seq.Load() {
				d.state.Store(int32(StateSuperseded))
				d.noteSuperseded()
				continue
			}
			d.state.Store(int32(StateReady))
			d.deliver(result)
		}
	}
}

func (d *Dispatcher) parse(seq uint64, text string) *ParseResult {
	start := time.Now()

	if len(text) > d.config.SummaryThreshold {
		summary := Summarize(text, d.config.MaxSummaryErrors)
		return &ParseResult{
			Seq:     seq,
			Mode:    ParseModeSummary,
			Summary: summary,
			Elapsed: time.Since(start),
		}
	}

	batch := Parse(text)
	d.validator.Validate(batch)

	mode := ParseModeBackground
	if len(text) <= d.config.SyncThreshold {
		mode = ParseModeSync
	}
	return &ParseResult{
		Seq:     seq,
		Mode:    mode,
		Batch:   batch,
		Elapsed: time.Since(start),
	}
}

func (d *Dispatcher) noteSuperseded() {
	d.superseded.Add(1)
	if d.config.OnSuperseded != nil {
		d.config.OnSuperseded()
	}
}

func (d *Dispatcher) deliver(result *ParseResult) {
	if d.onResult != nil {
		d.onResult(result)
	}
}
