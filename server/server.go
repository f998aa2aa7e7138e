package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolens/keyscope/analysis"
	"github.com/audiolens/keyscope/logging"
)

// Analyzer runs one analysis request against a file on disk
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*analysis.Result, error)
}

// audioMIMETypes maps accepted upload extensions to their MIME type.
// The stdlib mime table does not cover audio formats reliably, so the
// lookup is explicit.
var audioMIMETypes = map[string]string{
	".aac":  "audio/aac",
	".aiff": "audio/aiff",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".wav":  "audio/x-wav",
	".wma":  "audio/x-ms-wma",
}

// Config holds HTTP server configuration
type Config struct {
	MaxUploadBytes int64    // multipart memory/size limit, default 100 MiB
	AllowedOrigins []string // CORS origins; "*" allows any
	TempDir        string   // upload scratch space, default os.TempDir()
}

// Server exposes the analyzer over HTTP: POST /analyze (multipart audio
// upload), GET /health, GET /metrics
type Server struct {
	analyzer Analyzer
	config   Config
	logger   logging.Logger
}

// New creates a server around an analyzer
func New(analyzer Analyzer, config Config) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 100 << 20
	}
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}

	registerMetrics()

	return &Server{
		analyzer: analyzer,
		config:   config,
		logger:   logging.GetGlobalLogger(),
	}
}

// Handler builds the chi router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(countRequests)

	r.Get("/health", handleHealth)
	r.Post("/analyze", s.handleAnalyze)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}

	ext := strings.ToLower(filepath.Ext(filename))
	mimeType, ok := audioMIMETypes[ext]
	if !ok {
		writeError(w, http.StatusBadRequest, "file must be an audio file")
		return
	}

	s.logger.Debug("received upload", logging.Fields{
		"filename":  filename,
		"mime_type": mimeType,
		"size":      header.Size,
	})

	// The analyzer works on files, so the upload lives in a uuid-named
	// temp file for the duration of the request
	tempPath := filepath.Join(s.config.TempDir, uuid.NewString()+ext)
	if err := saveUpload(file, tempPath); err != nil {
		s.logger.Error(err, "failed to save upload", logging.Fields{"path": tempPath})
		writeError(w, http.StatusInternalServerError, "error handling file upload")
		return
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil {
			s.logger.Warn("failed to remove temp file", logging.Fields{"path": tempPath})
		}
	}()

	start := time.Now()
	result, err := s.analyzer.Analyze(r.Context(), tempPath)
	if err != nil {
		analysisFailures.Inc()
		s.logger.Error(err, "analysis failed", logging.Fields{"filename": filename})
		writeError(w, http.StatusInternalServerError, "error analyzing audio: "+err.Error())
		return
	}
	analysisDuration.Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, result)
}

func saveUpload(src io.Reader, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

// errorResponse mirrors the {"detail": ...} shape clients already parse
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// corsMiddleware answers preflight requests and stamps allowed origins
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// countRequests feeds the request counter with the final status code
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		httpRequests.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(ww.Status())).Inc()
	})
}
