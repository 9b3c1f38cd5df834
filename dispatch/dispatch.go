// Package dispatch runs one registered operation over persisted uploads
// and turns whatever happens, panics included, into a Result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wudi/pdftools/apperr"
	"github.com/wudi/pdftools/observability"
	"github.com/wudi/pdftools/registry"
	"github.com/wudi/pdftools/store"
)

const DefaultDeleteAfter = 300 * time.Second

// Request is one operation over already persisted inputs.
type Request struct {
	ToolID string
	Inputs []string
	Params map[string]string
}

// Outcome tags a Result.
type Outcome int

const (
	Single Outcome = iota
	Multi
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Single:
		return "single"
	case Multi:
		return "multi"
	}
	return "failure"
}

// Result is the outcome of a dispatch. A Single result names exactly one
// file in the output area; a Multi result names a directory there that
// holds at least one file; a Failure carries a classified error.
type Result struct {
	Outcome Outcome
	// OutputPath is the absolute path of a Single output.
	OutputPath string
	// Filename is the client reference of a Single output.
	Filename string
	FolderID string
	Files    []string
	Extra    map[string]any
	Err      *apperr.Error
}

func failure(kind apperr.Kind, msg string, cause error) Result {
	return Result{Outcome: Failure, Err: apperr.Wrap(kind, msg, cause)}
}

type Dispatcher struct {
	registry    *registry.Registry
	store       *store.Store
	deleteAfter time.Duration
	logger      *zap.Logger
	tracer      observability.Tracer
	duration    *prometheus.HistogramVec
}

type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithTracer(t observability.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithDeleteAfter sets the lifetime of single outputs.
func WithDeleteAfter(after time.Duration) Option {
	return func(d *Dispatcher) {
		if after > 0 {
			d.deleteAfter = after
		}
	}
}

// WithRegisterer registers the duration histogram with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(d *Dispatcher) {
		if reg != nil {
			reg.MustRegister(d.duration)
		}
	}
}

func New(reg *registry.Registry, s *store.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    reg,
		store:       s,
		deleteAfter: DefaultDeleteAfter,
		logger:      zap.NewNop(),
		tracer:      observability.NopTracer(),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdftools_operation_duration_seconds",
				Help:    "Time spent running an operation",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"tool", "outcome"},
		),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch resolves, coerces and runs req.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	start := time.Now()
	ctx, span := d.tracer.StartSpan(ctx, "dispatch "+req.ToolID)
	span.SetTag("tool", req.ToolID)
	span.SetTag("inputs", len(req.Inputs))

	res := d.dispatch(ctx, req)

	elapsed := time.Since(start)
	span.SetTag("outcome", res.Outcome.String())
	fields := []zap.Field{
		zap.String("tool", req.ToolID),
		zap.Int("inputs", len(req.Inputs)),
		zap.String("outcome", res.Outcome.String()),
		zap.Duration("duration", elapsed),
	}
	if res.Outcome == Failure {
		span.SetError(res.Err)
		fields = append(fields, zap.String("kind", res.Err.Kind.String()), zap.Error(res.Err))
		if res.Err.Kind == apperr.InternalFault {
			d.logger.Error("operation failed", fields...)
		} else {
			d.logger.Info("operation failed", fields...)
		}
	} else {
		d.logger.Info("operation finished", fields...)
	}
	span.Finish()
	if _, err := d.registry.Resolve(req.ToolID); err == nil {
		d.duration.WithLabelValues(req.ToolID, res.Outcome.String()).Observe(elapsed.Seconds())
	}
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) Result {
	spec, err := d.registry.Resolve(req.ToolID)
	if err != nil {
		return failure(apperr.UnknownTool, "Unknown tool", err)
	}
	params, err := spec.Coerce(req.Params)
	if err != nil {
		return failure(apperr.InvalidParameter, err.Error(), err)
	}

	in := registry.Input{Paths: req.Inputs, Params: params}
	var folderID string
	switch spec.Arity {
	case registry.Multi:
		folderID, in.Target, err = d.store.NewOutputDir()
		if err != nil {
			return failure(apperr.InternalFault, "Failed to allocate output", err)
		}
	default:
		in.Target = d.store.OutputPath(spec.OutputName)
	}

	out, err := invoke(ctx, spec.Run, in)
	if err == nil {
		err = verify(spec.Arity, in.Target, out)
	}
	if err != nil {
		d.store.RemoveNow(in.Target, store.ReasonFailure)
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return Result{Outcome: Failure, Err: ae}
		}
		return failure(apperr.OperationFailure, err.Error(), err)
	}

	// Output directories get no timer: the folder download removes them once
	// packaged, and the sweep reclaims any that are never fetched. Only the
	// archive is timed, so no timer can fire while the folder is zipped.
	if spec.Arity == registry.Multi {
		return Result{Outcome: Multi, FolderID: folderID, Files: out.Files, Extra: out.Extra}
	}
	d.store.ScheduleDeletion(in.Target, d.deleteAfter)
	return Result{
		Outcome:    Single,
		OutputPath: in.Target,
		Filename:   filepath.Base(in.Target),
		Extra:      out.Extra,
	}
}

// invoke runs a capability, converting a panic into an InternalFault.
func invoke(ctx context.Context, run registry.Capability, in registry.Input) (out registry.Output, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = apperr.Wrap(apperr.InternalFault, fmt.Sprint(v), fmt.Errorf("panic: %v", v))
		}
	}()
	return run(ctx, in)
}

// verify holds a successful capability to its arity: a single output must
// exist as a file, a multi output must have listed files that exist.
func verify(arity registry.Arity, target string, out registry.Output) error {
	if arity == registry.Multi {
		if len(out.Files) == 0 {
			return apperr.New(apperr.InternalFault, "operation produced no files")
		}
		for _, f := range out.Files {
			if _, err := os.Stat(filepath.Join(target, f)); err != nil {
				return apperr.Wrap(apperr.InternalFault, "operation output missing", err)
			}
		}
		return nil
	}
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return apperr.Wrap(apperr.InternalFault, "operation produced no output", err)
	}
	return nil
}
