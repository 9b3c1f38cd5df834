package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wudi/pdftools/apperr"
	"github.com/wudi/pdftools/dispatch"
	"github.com/wudi/pdftools/intake"
	"github.com/wudi/pdftools/registry"
	"github.com/wudi/pdftools/store"
)

func concat(_ context.Context, in registry.Input) (registry.Output, error) {
	var buf bytes.Buffer
	for _, p := range in.Paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return registry.Output{}, err
		}
		buf.Write(data)
	}
	if err := os.WriteFile(in.Target, buf.Bytes(), 0o644); err != nil {
		return registry.Output{}, err
	}
	return registry.Output{Extra: map[string]any{"inputs": len(in.Paths)}}, nil
}

func pieces(_ context.Context, in registry.Input) (registry.Output, error) {
	files := []string{"page_1.pdf", "page_2.pdf"}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(in.Target, f), []byte(f), 0o644); err != nil {
			return registry.Output{}, err
		}
	}
	return registry.Output{Files: files}, nil
}

type fixture struct {
	srv   *Server
	store *store.Store
	clock *clockwork.FakeClock
	logs  *observer.ObservedLogs
	reg   *prometheus.Registry
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	reg, err := registry.New(
		registry.OperationSpec{
			ID: "merge", Name: "Merge PDF", Title: "Merge PDF", Summary: "Combine PDFs",
			Description: "Combine multiple PDF files", Accept: ".pdf", Multiple: true,
			OutputName: "merged.pdf", Run: concat,
		},
		registry.OperationSpec{
			ID: "split", Name: "Split PDF", Title: "Split PDF", Arity: registry.Multi, Run: pieces,
			Params: []registry.ParamSpec{{Name: "split_type", Kind: registry.String, Default: "all", Enum: []string{"all", "range"}, OnInvalid: registry.Reject}},
		},
		registry.OperationSpec{
			ID: "protected", Name: "Protected", OutputName: "x.pdf",
			Run: func(context.Context, registry.Input) (registry.Output, error) {
				return registry.Output{}, apperr.New(apperr.OperationFailure, "PDF is password protected")
			},
		},
	)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	root := t.TempDir()
	st, err := store.New(filepath.Join(root, "up"), filepath.Join(root, "out"), store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	prom := prometheus.NewRegistry()
	opts = append([]Option{WithLogger(logger), WithMetrics(prom)}, opts...)
	srv := New(reg, intake.New(st), dispatch.New(reg, st), st, opts...)
	return &fixture{srv: srv, store: st, clock: clock, logs: logs, reg: prom}
}

func (f *fixture) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, r)
	return w
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func upload(t *testing.T, path string, files map[string]string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = io.WriteString(w, files[name])
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	r := httptest.NewRequest(http.MethodPost, path, &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestIndexListsCatalogInOrder(t *testing.T) {
	f := newFixture(t)
	w := f.get("/")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Tools []toolEntry `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Tools, 3)
	assert.Equal(t, toolEntry{
		ID: "merge", Name: "Merge PDF", Description: "Combine PDFs", URL: "/tool/merge",
		Accept: ".pdf", Multiple: true,
	}, body.Tools[0])
	assert.Equal(t, "split", body.Tools[1].ID)
}

func TestToolPage(t *testing.T) {
	f := newFixture(t)
	body := decode(t, f.get("/tool/split"))
	assert.Equal(t, "Split PDF", body["title"])
	assert.Equal(t, "multi", body["arity"])
	params := body["params"].([]any)
	require.Len(t, params, 1)
	assert.Equal(t, "split_type", params[0].(map[string]any)["name"])
	assert.NotNil(t, body["schema"])

	w := f.get("/tool/nope")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestProcessSingleThenDownload(t *testing.T) {
	f := newFixture(t)
	w := f.do(upload(t, "/process/merge", map[string]string{"a.pdf": "AA", "b.pdf": "BB"}, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 2.0, body["inputs"])
	name := body["filename"].(string)
	assert.True(t, strings.HasPrefix(name, "merged_"), name)
	assert.Equal(t, "/download/"+name, body["output_path"])

	dl := f.get("/download/" + name)
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "AABB", dl.Body.String())
	assert.Contains(t, dl.Header().Get("Content-Disposition"), "attachment")

	// Single outputs live for the default lifetime, then 404.
	f.clock.Advance(dispatch.DefaultDeleteAfter + time.Second)
	require.Eventually(t, func() bool {
		return f.get("/download/"+name).Code == http.StatusNotFound
	}, time.Second, 10*time.Millisecond)
}

func TestDownloadRefusesEscapesAndMissing(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/download/missing.pdf", "/download/..%2Fup", "/download/%2E%2E"} {
		w := f.get(path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, map[string]any{"success": false, "error": "File not found"}, decode(t, w), path)
	}
	w := f.get("/download-folder/nothing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Folder not found", decode(t, w)["error"])
}

func TestProcessMultiThenDownloadFolder(t *testing.T) {
	f := newFixture(t, WithArchiveTTL(time.Minute))
	w := f.do(upload(t, "/process/split", map[string]string{"a.pdf": "AA"}, map[string]string{"split_type": "all"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["is_folder"])
	assert.Equal(t, []any{"page_1.pdf", "page_2.pdf"}, body["files"])
	id := body["output_folder"].(string)
	dir := filepath.Join(f.store.Dir(store.Outputs), id)
	require.DirExists(t, dir)

	dl := f.get("/download-folder/" + id)
	require.Equal(t, http.StatusOK, dl.Code, dl.Body.String())
	zr, err := zip.NewReader(bytes.NewReader(dl.Body.Bytes()), int64(dl.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	assert.Equal(t, []string{"page_1.pdf", "page_2.pdf"}, names)
	assert.NoDirExists(t, dir)

	// The folder is gone, the cached archive still answers.
	again := f.get("/download-folder/" + id)
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, dl.Body.Bytes(), again.Body.Bytes())

	f.clock.Advance(time.Minute + time.Second)
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(f.store.Dir(store.Outputs), id+".zip"))
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, http.StatusNotFound, f.get("/download-folder/"+id).Code)
}

func TestProcessFailures(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		req    *http.Request
		status int
		msg    string
	}{
		{"unknown tool", upload(t, "/process/nope", map[string]string{"a.pdf": "x"}, nil), http.StatusBadRequest, "Unknown tool"},
		{"no file", upload(t, "/process/merge", nil, map[string]string{"k": "v"}), http.StatusBadRequest, "No file uploaded"},
		{"invalid param", upload(t, "/process/split", map[string]string{"a.pdf": "x"}, map[string]string{"split_type": "bogus"}), http.StatusBadRequest, ""},
		{"operation failure", upload(t, "/process/protected", map[string]string{"a.pdf": "x"}, nil), http.StatusInternalServerError, "PDF is password protected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(tc.req)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			if tc.msg != "" {
				assert.Equal(t, tc.msg, body["error"])
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, WithRateLimit(0.001, 1))
	assert.Equal(t, http.StatusOK, f.get("/").Code)
	w := f.get("/")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many requests", decode(t, w)["error"])
	// Health and metrics stay reachable.
	assert.Equal(t, http.StatusOK, f.get("/healthz").Code)
}

func TestHealthMetricsAndRequestLog(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, map[string]any{"status": "ok"}, decode(t, f.get("/healthz")))
	f.get("/tool/merge")

	w := f.get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pdftools_http_requests_total{method="GET",route="/tool/{id}",status="200"} 1`)

	entries := f.logs.FilterMessage("request").AllUntimed()
	require.NotEmpty(t, entries)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/healthz", fields["path"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
}
