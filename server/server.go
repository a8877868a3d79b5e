// Package server exposes the job service over HTTP as a JSON API.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yirzhou/radioedit"
)

const defaultMaxUploadBytes = 1 << 30

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
}

func contentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// JingleLister reports the configured jingle inventory.
type JingleLister interface {
	List() ([]string, error)
}

// Config holds the knobs of the HTTP layer.
type Config struct {
	MaxUploadBytes int64
	// SubmitLimiter throttles POST /jobs and POST /uploads; nil disables it.
	SubmitLimiter *rate.Limiter
}

// Server routes requests to the job service.
type Server struct {
	svc     *radioedit.Service
	inbox   *radioedit.Inbox
	jingles JingleLister
	logger  *zap.Logger
	cfg     Config
	router  chi.Router
}

// New builds the router.
func New(svc *radioedit.Service, inbox *radioedit.Inbox, jingles JingleLister, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		svc:     svc,
		inbox:   inbox,
		jingles: jingles,
		logger:  logger,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recovery(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" not allowed on "+r.URL.Path)
	})

	r.Get("/healthz", s.health)

	r.Route("/jobs", func(r chi.Router) {
		r.With(rateLimit(s.cfg.SubmitLimiter)).Post("/", s.submit)
		r.Get("/", s.list)
		r.Get("/{id}", s.get)
		r.Post("/{id}/cancel", s.cancel)
	})
	r.Get("/outputs/{name}", s.output)

	r.With(rateLimit(s.cfg.SubmitLimiter)).Post("/uploads", s.upload)
	r.Get("/uploads", s.uploads)
	r.Get("/jingles", s.listJingles)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"pending":   s.svc.Pending(),
		"workers":   s.svc.WorkerStates(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// submitRequest mirrors radioedit.Params with every field required.
type submitRequest struct {
	Filename             string                     `json:"filename"`
	SilenceThresholdDBFS *float64                   `json:"silence_threshold_dbfs"`
	TargetLUFS           *float64                   `json:"target_lufs"`
	Jingles              *radioedit.JingleSelection `json:"jingles"`
}

func (req submitRequest) params() (radioedit.Params, error) {
	switch {
	case req.SilenceThresholdDBFS == nil:
		return radioedit.Params{}, &radioedit.ValidationError{Field: "silence_threshold_dbfs", Reason: "required"}
	case req.TargetLUFS == nil:
		return radioedit.Params{}, &radioedit.ValidationError{Field: "target_lufs", Reason: "required"}
	case req.Jingles == nil:
		return radioedit.Params{}, &radioedit.ValidationError{Field: "jingles", Reason: "required"}
	}
	return radioedit.Params{
		SilenceThresholdDBFS: *req.SilenceThresholdDBFS,
		TargetLUFS:           *req.TargetLUFS,
		Jingles:              *req.Jingles,
	}, nil
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body: "+err.Error())
		return
	}
	params, err := req.params()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.svc.Submit(req.Filename, params)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.List())
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Job(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.svc.Cancel(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "result": string(res)})
}

func (s *Server) output(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rc, err := s.svc.FetchOutput(name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer rc.Close()

	ctype := contentType(name)
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("output transfer interrupted", zap.String("output", name), zap.Error(err))
	}
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "expected multipart/form-data")
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "form field \"file\" is required")
			return
		}
		if err != nil {
			if tooLarge(err) {
				writeError(w, r, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", err.Error())
				return
			}
			writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid upload: "+err.Error())
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		name, err := s.inbox.Save(part.FileName(), part)
		_ = part.Close()
		if err != nil {
			if tooLarge(err) {
				writeError(w, r, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", err.Error())
				return
			}
			s.fail(w, r, err)
			return
		}
		s.logger.Info("uploaded file", zap.String("file", name))
		writeJSON(w, http.StatusCreated, map[string]string{"filename": name})
		return
	}
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func (s *Server) uploads(w http.ResponseWriter, r *http.Request) {
	names, err := s.inbox.List()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) listJingles(w http.ResponseWriter, r *http.Request) {
	names, err := s.jingles.List()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}
