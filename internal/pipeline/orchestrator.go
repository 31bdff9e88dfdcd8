package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/AnyUserName/imgcrush/internal/config"
	"github.com/AnyUserName/imgcrush/internal/decoder"
	"github.com/AnyUserName/imgcrush/internal/encoder"
	"github.com/AnyUserName/imgcrush/internal/raster"
	"github.com/AnyUserName/imgcrush/internal/resizer"
)

// State is the lifecycle position of an Orchestrator.
type State int32

const (
	Uninitialized State = iota
	Ready
	Running
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Result is a successful run. Data is owned by the caller.
type Result struct {
	Data   []byte
	Width  uint32
	Height uint32
	Format config.Format
}

// ProgressFunc is called as each stage starts.
type ProgressFunc func(stage Stage)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(o *Orchestrator) { o.limits = l }
}

// WithRegisterer sends metrics to reg instead of the default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Orchestrator) { o.reg = reg }
}

// WithProgress installs a stage hook.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithRegistry uses a private encoder registry instead of the shared one.
func WithRegistry(r *encoder.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// Orchestrator runs decode, resize and encode for one input at a time.
// A Run issued while another is in flight fails with ErrBusy; callers that
// need queueing put a FIFO in front (see the worker package).
type Orchestrator struct {
	log      *zap.Logger
	limits   Limits
	reg      prometheus.Registerer
	progress ProgressFunc
	registry *encoder.Registry
	encode   func(*raster.Image, config.Format, int) ([]byte, error)
	metrics  *metrics

	initOnce sync.Once
	run      sync.Mutex
	state    atomic.Int32
}

// New returns an Uninitialized orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:    zap.NewNop(),
		limits: DefaultLimits(),
		reg:    prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.metrics = newMetrics(o.reg)
	return o
}

// Init moves the orchestrator to Ready. It builds the shared encoder tables
// on first use and is safe to call repeatedly or concurrently.
func (o *Orchestrator) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &Error{Err: fmt.Errorf("%w: %w", ErrCancelled, err)}
	}
	o.initOnce.Do(func() {
		reg := o.registry
		if reg != nil {
			o.encode = reg.Encode
		} else {
			reg = encoder.Init()
			o.encode = encoder.Encode
		}
		o.log.Debug("pipeline ready", zap.Stringer("encoders", reg))
		o.state.Store(int32(Ready))
	})
	return nil
}

// Ready reports whether Init has completed. It never blocks.
func (o *Orchestrator) Ready() bool {
	return o.State() != Uninitialized
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Reset returns a finished orchestrator to Ready.
func (o *Orchestrator) Reset() error {
	if !o.run.TryLock() {
		return &Error{Err: ErrBusy}
	}
	defer o.run.Unlock()
	if o.State() == Uninitialized {
		return &Error{Err: ErrNotReady}
	}
	o.state.Store(int32(Ready))
	return nil
}

// Run processes one input. It returns exactly one of a Result or an *Error.
// Cancellation is checked between stages only.
func (o *Orchestrator) Run(ctx context.Context, data []byte, cfg config.PipelineConfig) (*Result, error) {
	if o.State() == Uninitialized {
		return nil, o.fail(Failed, &Error{Err: ErrNotReady})
	}
	if !o.run.TryLock() {
		return nil, &Error{Err: ErrBusy}
	}
	defer o.run.Unlock()
	o.state.Store(int32(Running))

	start := time.Now()
	res, err := o.execute(ctx, data, cfg)
	if err != nil {
		final := Failed
		if errors.Is(err, ErrCancelled) {
			final = Cancelled
		}
		o.logFailure(cfg, err, time.Since(start))
		return nil, o.fail(final, err)
	}

	o.state.Store(int32(Completed))
	o.metrics.runs.WithLabelValues(Completed.String()).Inc()
	o.metrics.output.Add(float64(len(res.Data)))
	o.logAt(cfg, "pipeline completed",
		zap.Stringer("format", res.Format),
		zap.Uint32("width", res.Width),
		zap.Uint32("height", res.Height),
		zap.Int("bytes", len(res.Data)),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

func (o *Orchestrator) execute(ctx context.Context, data []byte, cfg config.PipelineConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, stageError(StageValidate, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	if err := o.limits.checkInput(len(data)); err != nil {
		return nil, &Error{Err: err}
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	var img *raster.Image
	err := o.stage(StageDecode, func() error {
		info, err := decoder.Probe(data)
		if err != nil {
			return err
		}
		if err := o.limits.checkPixels(info.Width, info.Height); err != nil {
			return err
		}
		img, err = decoder.Decode(data)
		return err
	})
	if err != nil {
		return nil, o.tagDecode(err)
	}
	o.logAt(cfg, "decoded", zap.Uint32("width", img.Width), zap.Uint32("height", img.Height))
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	err = o.stage(StageResize, func() error {
		var rerr error
		img, rerr = resizer.Resize(img, cfg)
		return rerr
	})
	if err != nil {
		return nil, stageError(StageResize, err)
	}
	o.logAt(cfg, "resized", zap.Uint32("width", img.Width), zap.Uint32("height", img.Height))
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	var out []byte
	err = o.stage(StageEncode, func() error {
		var eerr error
		out, eerr = o.encode(img, cfg.OutputFormat, cfg.Quality)
		return eerr
	})
	if err != nil {
		return nil, stageError(StageEncode, err)
	}

	return &Result{
		Data:   out,
		Width:  img.Width,
		Height: img.Height,
		Format: cfg.OutputFormat,
	}, nil
}

// tagDecode leaves the pixel limit unstaged, like the input byte limit.
func (o *Orchestrator) tagDecode(err error) error {
	if errors.Is(err, ErrResourceLimitExceeded) {
		return &Error{Err: err}
	}
	return stageError(StageDecode, err)
}

func (o *Orchestrator) stage(s Stage, fn func() error) error {
	if o.progress != nil {
		o.progress(s)
	}
	o.metrics.stages.WithLabelValues(string(s)).Inc()
	timer := prometheus.NewTimer(o.metrics.duration.WithLabelValues(string(s)))
	defer timer.ObserveDuration()
	return fn()
}

func (o *Orchestrator) fail(final State, err error) error {
	if o.State() != Uninitialized {
		o.state.Store(int32(final))
	}
	o.metrics.runs.WithLabelValues(final.String()).Inc()
	return err
}

func (o *Orchestrator) logAt(cfg config.PipelineConfig, msg string, fields ...zap.Field) {
	if cfg.Debug {
		o.log.Info(msg, fields...)
		return
	}
	o.log.Debug(msg, fields...)
}

func (o *Orchestrator) logFailure(cfg config.PipelineConfig, err error, took time.Duration) {
	o.logAt(cfg, "pipeline failed",
		zap.String("kind", KindOf(err)),
		zap.Error(err),
		zap.Duration("took", took),
	)
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &Error{Err: fmt.Errorf("%w: %w", ErrCancelled, err)}
	}
	return nil
}
