package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wudi/pdftools/apperr"
	"github.com/wudi/pdftools/archive"
	"github.com/wudi/pdftools/dispatch"
	"github.com/wudi/pdftools/registry"
	"github.com/wudi/pdftools/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err *apperr.Error) {
	writeJSON(w, apperr.HTTPStatus(err.Kind), map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type toolEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Accept      string `json:"accept"`
	Multiple    bool   `json:"multiple"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	catalog := s.registry.Catalog()
	entries := make([]toolEntry, len(catalog))
	for i, spec := range catalog {
		entries[i] = toolEntry{
			ID:          spec.ID,
			Name:        spec.Name,
			Description: spec.Summary,
			URL:         "/tool/" + spec.ID,
			Accept:      spec.Accept,
			Multiple:    spec.Multiple,
			Icon:        spec.Icon,
			Color:       spec.Color,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": entries})
}

type toolPage struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Accept      string               `json:"accept"`
	Multiple    bool                 `json:"multiple"`
	Icon        string               `json:"icon"`
	Color       string               `json:"color"`
	Arity       registry.Arity       `json:"arity"`
	Params      []registry.ParamSpec `json:"params"`
	Schema      map[string]any       `json:"schema,omitempty"`
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	spec, err := s.registry.Resolve(chi.URLParam(r, "id"))
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	params := spec.Params
	if params == nil {
		params = []registry.ParamSpec{}
	}
	writeJSON(w, http.StatusOK, toolPage{
		ID:          spec.ID,
		Title:       spec.Title,
		Description: spec.Description,
		Accept:      spec.Accept,
		Multiple:    spec.Multiple,
		Icon:        spec.Icon,
		Color:       spec.Color,
		Arity:       spec.Arity,
		Params:      params,
		Schema:      spec.Schema(),
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.Resolve(id); err != nil {
		writeError(w, apperr.Wrap(apperr.UnknownTool, "Unknown tool", err))
		return
	}
	up, err := s.intake.Accept(w, r)
	if err != nil {
		var ae *apperr.Error
		if !errors.As(err, &ae) {
			ae = apperr.Wrap(apperr.InternalFault, err.Error(), err)
		}
		writeError(w, ae)
		return
	}

	res := s.dispatcher.Dispatch(r.Context(), dispatch.Request{
		ToolID: id,
		Inputs: up.Paths(),
		Params: up.Params,
	})
	body := make(map[string]any, len(res.Extra)+4)
	for k, v := range res.Extra {
		body[k] = v
	}
	switch res.Outcome {
	case dispatch.Single:
		body["success"] = true
		body["output_path"] = "/download/" + res.Filename
		body["filename"] = res.Filename
	case dispatch.Multi:
		body["success"] = true
		body["output_folder"] = res.FolderID
		body["files"] = res.Files
		body["is_folder"] = true
	default:
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	path, err := s.store.Resolve(store.Outputs, name)
	if err == nil {
		err = s.serveFile(w, r, path, name)
	}
	if err != nil {
		s.logger.Debug("download refused", zap.String("filename", name), zap.Error(err))
		writeError(w, apperr.Wrap(apperr.ArtifactNotFound, "File not found", err))
	}
}

func (s *Server) handleDownloadFolder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	zipPath, err := s.packageFolder(r, id)
	if err == nil {
		err = s.serveFile(w, r, zipPath, id+".zip")
	}
	if err != nil {
		s.logger.Debug("folder download refused", zap.String("folder", id), zap.Error(err))
		writeError(w, apperr.Wrap(apperr.ArtifactNotFound, "Folder not found", err))
	}
}

// packageFolder returns the archive of output folder id, building it on
// first request. Building removes the folder and schedules the archive for
// deletion; until then later requests get the same archive.
func (s *Server) packageFolder(r *http.Request, id string) (string, error) {
	defer s.packing.lock(id)()

	if v, ok := s.archives.Get(id); ok {
		return v.(string), nil
	}
	dir, err := s.store.Resolve(store.Outputs, id)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a folder", store.ErrNotFound, id)
	}
	zipPath := filepath.Join(s.store.Dir(store.Outputs), id+".zip")
	n, err := archive.ZipDir(r.Context(), dir, zipPath, archive.Options{})
	if err != nil {
		return "", err
	}
	s.store.ScheduleDeletion(zipPath, s.archiveTTL)
	s.store.RemoveNow(dir, store.ReasonPackaged)
	s.archives.Set(id, zipPath, s.archiveTTL)
	s.logger.Debug("folder packaged", zap.String("folder", id), zap.Int("files", n))
	return zipPath, nil
}

// serveFile streams path as an attachment. A file removed since it was
// resolved is reported as missing.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a folder", store.ErrNotFound, name)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
	return nil
}
