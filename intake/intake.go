// Package intake turns a multipart upload into persisted artifacts and a
// raw parameter map.
package intake

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/pdftools/apperr"
	"github.com/wudi/pdftools/store"
)

const (
	DefaultMaxBytes    = 100 << 20
	DefaultDeleteAfter = 300 * time.Second
	// memoryLimit is how much of a form is held in memory before parts
	// spill to temporary files.
	memoryLimit = 8 << 20
)

// Upload is an accepted request: files in upload order and the non-file
// form fields, first value winning.
type Upload struct {
	Files  []store.Artifact
	Params map[string]string
}

// Paths returns the stored paths of the files.
func (u *Upload) Paths() []string {
	out := make([]string, len(u.Files))
	for i, f := range u.Files {
		out[i] = f.Path
	}
	return out
}

type Intake struct {
	store       *store.Store
	maxBytes    int64
	deleteAfter time.Duration
	logger      *zap.Logger
}

type Option func(*Intake)

// WithMaxBytes bounds the whole request body.
func WithMaxBytes(n int64) Option {
	return func(in *Intake) {
		if n > 0 {
			in.maxBytes = n
		}
	}
}

// WithDeleteAfter sets how long an upload lives.
func WithDeleteAfter(d time.Duration) Option {
	return func(in *Intake) {
		if d > 0 {
			in.deleteAfter = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(in *Intake) { in.logger = l }
}

func New(s *store.Store, opts ...Option) *Intake {
	in := &Intake{
		store:       s,
		maxBytes:    DefaultMaxBytes,
		deleteAfter: DefaultDeleteAfter,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Accept reads the files under the "files" field, or the "file" field
// when there is none. Every stored file is scheduled for deletion at once,
// so it is reclaimed whatever happens to the request afterwards.
func (in *Intake) Accept(w http.ResponseWriter, r *http.Request) (*Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, in.maxBytes)
	if err := r.ParseMultipartForm(memoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Wrap(apperr.InvalidParameter, "File too large", err)
		}
		return nil, apperr.Wrap(apperr.NoFileProvided, "No file uploaded", err)
	}
	form := r.MultipartForm
	defer form.RemoveAll()

	headers, ok := form.File["files"]
	if !ok {
		headers, ok = form.File["file"]
	}
	if !ok {
		// A file input submitted with nothing chosen arrives as a plain
		// value, since multipart only treats parts with a filename as files.
		if _, chosen := form.Value["files"]; chosen {
			return nil, apperr.New(apperr.EmptySelection, "No file selected")
		}
		if _, chosen := form.Value["file"]; chosen {
			return nil, apperr.New(apperr.EmptySelection, "No file selected")
		}
		return nil, apperr.New(apperr.NoFileProvided, "No file uploaded")
	}

	up := &Upload{Params: make(map[string]string, len(form.Value))}
	for k, vs := range form.Value {
		if len(vs) > 0 && k != "file" && k != "files" {
			up.Params[k] = vs[0]
		}
	}

	selected := false
	for _, fh := range headers {
		if fh.Filename == "" {
			continue
		}
		selected = true
		f, err := fh.Open()
		if err != nil {
			return nil, apperr.Wrap(apperr.InternalFault, "Failed to read upload", err)
		}
		a, err := in.store.Persist(f, store.Uploads, fh.Filename)
		f.Close()
		if errors.Is(err, store.ErrEmptyUpload) {
			in.logger.Debug("skipping empty upload", zap.String("filename", fh.Filename))
			continue
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.InternalFault, "Failed to store upload", err)
		}
		in.store.ScheduleDeletion(a.Path, in.deleteAfter)
		up.Files = append(up.Files, a)
	}
	if !selected {
		return nil, apperr.New(apperr.EmptySelection, "No file selected")
	}
	if len(up.Files) == 0 {
		return nil, apperr.New(apperr.NoValidFiles, "No valid files uploaded")
	}
	in.logger.Debug("upload accepted", zap.Int("files", len(up.Files)), zap.Int("params", len(up.Params)))
	return up, nil
}
