package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolens/keyscope/analysis"
)

// stubAnalyzer records the path it was handed and whether the upload
// actually existed on disk at analysis time
type stubAnalyzer struct {
	result      *analysis.Result
	err         error
	seenPath    string
	fileExisted bool
}

func (s *stubAnalyzer) Analyze(ctx context.Context, path string) (*analysis.Result, error) {
	s.seenPath = path
	_, statErr := os.Stat(path)
	s.fileExisted = statErr == nil
	return s.result, s.err
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Detail
}

func TestHealthEndpoint(t *testing.T) {
	srv := New(&stubAnalyzer{}, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAnalyzeSuccess(t *testing.T) {
	want := &analysis.Result{
		BPM:               128.0,
		Key:               "F#m",
		KeyConfidence:     82.5,
		Loudness:          -14.2,
		Duration:          215.0,
		DurationFormatted: "03:35",
	}
	stub := &stubAnalyzer{result: want}
	srv := New(stub, Config{TempDir: t.TempDir()})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "track.wav", []byte("fake wav bytes")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got analysis.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, *want, got)

	// The upload was staged on disk for the analyzer and cleaned up after
	assert.True(t, stub.fileExisted)
	_, statErr := os.Stat(stub.seenPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAnalyzeNullableTagsInJSON(t *testing.T) {
	stub := &stubAnalyzer{result: &analysis.Result{Key: "Unknown"}}
	srv := New(stub, Config{TempDir: t.TempDir()})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "track.mp3", []byte("bytes")))

	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	assert.Contains(t, payload, "artist")
	assert.Nil(t, payload["artist"])
	assert.Contains(t, payload, "title")
	assert.Nil(t, payload["title"])
	assert.Contains(t, payload, "duration_formatted")
}

func TestAnalyzeMissingFile(t *testing.T) {
	srv := New(&stubAnalyzer{}, Config{})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("other", "value"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no file provided", decodeDetail(t, rec))
}

func TestAnalyzeRejectsNonAudioExtension(t *testing.T) {
	srv := New(&stubAnalyzer{}, Config{})

	tests := []string{"document.pdf", "notes.txt", "archive.zip", "noextension"}
	for _, filename := range tests {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, uploadRequest(t, filename, []byte("data")))

		assert.Equal(t, http.StatusBadRequest, rec.Code, "filename %q", filename)
		assert.Equal(t, "file must be an audio file", decodeDetail(t, rec), "filename %q", filename)
	}
}

func TestAnalyzeAcceptedExtensions(t *testing.T) {
	stub := &stubAnalyzer{result: &analysis.Result{Key: "C"}}
	srv := New(stub, Config{TempDir: t.TempDir()})

	for ext := range audioMIMETypes {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, uploadRequest(t, "track"+ext, []byte("data")))
		assert.Equal(t, http.StatusOK, rec.Code, "extension %q", ext)
	}
}

func TestAnalyzeAnalyzerFailure(t *testing.T) {
	stub := &stubAnalyzer{err: errors.New("decode audio: boom")}
	srv := New(stub, Config{TempDir: t.TempDir()})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "track.wav", []byte("data")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeDetail(t, rec), "error analyzing audio")

	// The temp file is removed even on failure
	_, statErr := os.Stat(stub.seenPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAnalyzeNotMultipart(t *testing.T) {
	srv := New(&stubAnalyzer{}, Config{})

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString("plain body"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := New(&stubAnalyzer{}, Config{
		AllowedOrigins: []string{"http://localhost:5173"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSDisallowedOrigin(t *testing.T) {
	srv := New(&stubAnalyzer{}, Config{
		AllowedOrigins: []string{"http://localhost:5173"},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcard(t *testing.T) {
	srv := New(&stubAnalyzer{}, Config{AllowedOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://anywhere.example")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://anywhere.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := New(&stubAnalyzer{}, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
