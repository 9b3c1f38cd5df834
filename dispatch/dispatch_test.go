package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wudi/pdftools/apperr"
	"github.com/wudi/pdftools/observability"
	"github.com/wudi/pdftools/registry"
	"github.com/wudi/pdftools/store"
)

func writeSingle(_ context.Context, in registry.Input) (registry.Output, error) {
	if err := os.WriteFile(in.Target, []byte(in.Params.String("text")), 0o644); err != nil {
		return registry.Output{}, err
	}
	return registry.Output{Filename: filepath.Base(in.Target), Extra: map[string]any{"n": len(in.Paths)}}, nil
}

func writeMulti(_ context.Context, in registry.Input) (registry.Output, error) {
	var files []string
	for i := range in.Params.Int("count") {
		name := filepath.Base(in.Target) + "_" + string(rune('a'+i)) + ".pdf"
		if err := os.WriteFile(filepath.Join(in.Target, name), []byte("x"), 0o644); err != nil {
			return registry.Output{}, err
		}
		files = append(files, name)
	}
	return registry.Output{Files: files}, nil
}

func partialThenFail(_ context.Context, in registry.Input) (registry.Output, error) {
	_ = os.WriteFile(in.Target, []byte("half"), 0o644)
	return registry.Output{}, apperr.New(apperr.OperationFailure, "PDF is password protected")
}

type fixture struct {
	d     *Dispatcher
	store *store.Store
	clock *clockwork.FakeClock
	spans *tracetest.SpanRecorder
	reg   *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	specs := []registry.OperationSpec{
		{ID: "single", OutputName: "out.txt", Run: writeSingle,
			Params: []registry.ParamSpec{{Name: "text", Kind: registry.Text, Default: "hello"}}},
		{ID: "multi", Arity: registry.Multi, Run: writeMulti,
			Params: []registry.ParamSpec{{Name: "count", Kind: registry.Int, Default: 2, OnInvalid: registry.Reject, Min: registry.Bound(0)}}},
		{ID: "panics", OutputName: "x.pdf", Run: func(context.Context, registry.Input) (registry.Output, error) {
			panic("index out of range")
		}},
		{ID: "fails", OutputName: "x.pdf", Run: partialThenFail},
		{ID: "errors", OutputName: "x.pdf", Run: func(context.Context, registry.Input) (registry.Output, error) {
			return registry.Output{}, errors.New("broken xref")
		}},
		{ID: "lies", OutputName: "x.pdf", Run: func(context.Context, registry.Input) (registry.Output, error) {
			return registry.Output{}, nil
		}},
	}
	reg, err := registry.New(specs...)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	root := t.TempDir()
	s, err := store.New(filepath.Join(root, "up"), filepath.Join(root, "out"), store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	promReg := prometheus.NewRegistry()
	d := New(reg, s,
		WithTracer(observability.NewProviderFrom(tp).Tracer()),
		WithRegisterer(promReg),
		WithDeleteAfter(time.Minute))
	return &fixture{d: d, store: s, clock: clock, spans: rec, reg: promReg}
}

func (f *fixture) outputs(t *testing.T) []string {
	entries, err := os.ReadDir(f.store.Dir(store.Outputs))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDispatchSingle(t *testing.T) {
	f := newFixture(t)
	res := f.d.Dispatch(context.Background(), Request{ToolID: "single", Inputs: []string{"a", "b"}, Params: map[string]string{"text": "hi"}})
	require.Equal(t, Single, res.Outcome, "%v", res.Err)
	assert.Equal(t, filepath.Base(res.OutputPath), res.Filename)
	assert.Equal(t, map[string]any{"n": 2}, res.Extra)
	data, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
	assert.Equal(t, 1, f.store.Pending())

	f.clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { _, err := os.Stat(res.OutputPath); return os.IsNotExist(err) }, time.Second, time.Millisecond)

	spans := f.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "dispatch single", spans[0].Name())
	assert.Equal(t, 1, testutil.CollectAndCount(f.d.duration))
}

func TestDispatchMultiIsNotScheduled(t *testing.T) {
	f := newFixture(t)
	res := f.d.Dispatch(context.Background(), Request{ToolID: "multi", Params: map[string]string{"count": "3"}})
	require.Equal(t, Multi, res.Outcome, "%v", res.Err)
	assert.Len(t, res.Files, 3)
	assert.DirExists(t, filepath.Join(f.store.Dir(store.Outputs), res.FolderID))
	assert.Equal(t, 0, f.store.Pending())
}

func TestDispatchFailures(t *testing.T) {
	cases := []struct {
		tool   string
		params map[string]string
		kind   apperr.Kind
		msg    string
	}{
		{"nope", nil, apperr.UnknownTool, "Unknown tool"},
		{"multi", map[string]string{"count": "many"}, apperr.InvalidParameter, "Invalid value for count: not an integer"},
		{"panics", nil, apperr.InternalFault, "index out of range"},
		{"fails", nil, apperr.OperationFailure, "PDF is password protected"},
		{"errors", nil, apperr.OperationFailure, "broken xref"},
		{"lies", nil, apperr.InternalFault, "operation produced no output"},
		{"multi", map[string]string{"count": "0"}, apperr.InternalFault, "operation produced no files"},
	}
	for _, tc := range cases {
		t.Run(tc.tool, func(t *testing.T) {
			f := newFixture(t)
			res := f.d.Dispatch(context.Background(), Request{ToolID: tc.tool, Params: tc.params})
			require.Equal(t, Failure, res.Outcome)
			assert.Equal(t, tc.kind, res.Err.Kind)
			assert.Equal(t, tc.msg, res.Err.Error())
			assert.Empty(t, f.outputs(t), "partial output must be removed")
			assert.Equal(t, 0, f.store.Pending())
		})
	}
}

func TestDispatchRecordsFailedSpan(t *testing.T) {
	f := newFixture(t)
	f.d.Dispatch(context.Background(), Request{ToolID: "errors"})
	spans := f.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "broken xref", spans[0].Status().Description)
}
