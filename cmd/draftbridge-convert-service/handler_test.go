// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/draftbridge/draftbridge/lib/convert"
	"github.com/draftbridge/draftbridge/lib/engine"
	"github.com/draftbridge/draftbridge/lib/limiter"
	"github.com/draftbridge/draftbridge/lib/testutil"
	"github.com/draftbridge/draftbridge/lib/workspace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testHandler wires a ConvertHandler against a fake engine script.
func testHandler(t *testing.T, engineScript string, maxUploadBytes int64) *ConvertHandler {
	t.Helper()
	logger := testLogger()
	manager, err := workspace.NewManager(workspace.ManagerConfig{
		Root:   filepath.Join(t.TempDir(), "workspaces"),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	runner := engine.NewRunner(engine.RunnerConfig{
		BinaryPath:   engineScript,
		GracePeriod:  100 * time.Millisecond,
		CaptureLimit: 4096,
		Logger:       logger,
	})
	orchestrator := convert.NewOrchestrator(convert.OrchestratorConfig{
		Workspaces: manager,
		Runner:     runner,
		Admission:  limiter.New(2, 2),
		Timeout:    5 * time.Second,
		Logger:     logger,
	})
	return NewConvertHandler(ConvertHandlerConfig{
		Orchestrator:   orchestrator,
		MaxUploadBytes: maxUploadBytes,
		Logger:         logger,
	})
}

// multipartBody builds a multipart/form-data body with a single file
// field and returns the body with its Content-Type header value.
func multipartBody(t *testing.T, fieldName, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buffer, writer.FormDataContentType()
}

func decodeErrorPayload(t *testing.T, body io.Reader) errorPayload {
	t.Helper()
	var payload errorPayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		t.Fatalf("decoding error payload: %v", err)
	}
	return payload
}

func TestBanner(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `cp "$3" "$2"`), 1<<20)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "POST /convert") {
		t.Errorf("banner does not mention the convert endpoint: %q", recorder.Body.String())
	}
}

func TestHealth(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `cp "$3" "$2"`), 1<<20)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if recorder.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", recorder.Body.String(), "ok")
	}
}

func TestOpenAPIDocument(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `cp "$3" "$2"`), 1<<20)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}

	var document map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &document); err != nil {
		t.Fatalf("OpenAPI document is not valid JSON: %v", err)
	}
	paths, ok := document["paths"].(map[string]any)
	if !ok {
		t.Fatal("OpenAPI document has no paths object")
	}
	if _, ok := paths["/convert"]; !ok {
		t.Error("OpenAPI document does not describe /convert")
	}
}

func TestUnknownRouteNotFound(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `cp "$3" "$2"`), 1<<20)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if recorder.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", recorder.Code)
	}
}

func TestConvertRejectsGet(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `cp "$3" "$2"`), 1<<20)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/convert", nil))

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", recorder.Code)
	}
}

func TestConvertMultipartSuccess(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `cp "$3" "$2"`), 1<<20)

	dwg := []byte("AC1027 fake drawing bytes")
	body, contentType := multipartBody(t, "file", "floorplan.DWG", dwg)
	request := httptest.NewRequest(http.MethodPost, "/convert", body)
	request.Header.Set("Content-Type", contentType)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", recorder.Code, recorder.Body.String())
	}
	if !bytes.Equal(recorder.Body.Bytes(), dwg) {
		t.Error("response body does not match the engine output")
	}
	if got := recorder.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want application/octet-stream", got)
	}

	disposition := recorder.Header().Get("Content-Disposition")
	pattern := regexp.MustCompile(`^attachment; filename="[0-9a-f-]{36}\.dxf"$`)
	if !pattern.MatchString(disposition) {
		t.Errorf("Content-Disposition = %q, want attachment with a UUID .dxf filename", disposition)
	}

	requestID := recorder.Header().Get("X-Request-Id")
	if requestID == "" {
		t.Error("missing X-Request-Id header")
	}
	if !strings.Contains(disposition, requestID) {
		t.Errorf("filename %q does not contain request ID %q", disposition, requestID)
	}

	digest := recorder.Header().Get("X-Content-Digest")
	if !strings.HasPrefix(digest, "blake3:") || len(digest) != len("blake3:")+64 {
		t.Errorf("X-Content-Digest = %q, want blake3-prefixed 64-hex digest", digest)
	}
}

func TestConvertRawBodySuccess(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `cp "$3" "$2"`), 1<<20)

	dwg := []byte("raw drawing upload")
	request := httptest.NewRequest(http.MethodPost, "/convert", bytes.NewReader(dwg))
	request.Header.Set("Content-Type", "application/octet-stream")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", recorder.Code, recorder.Body.String())
	}
	if !bytes.Equal(recorder.Body.Bytes(), dwg) {
		t.Error("response body does not match the engine output")
	}
}

func TestConvertGzipResponse(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `cp "$3" "$2"`), 1<<20)

	dwg := bytes.Repeat([]byte("0\nLINE\n"), 500)
	request := httptest.NewRequest(http.MethodPost, "/convert", bytes.NewReader(dwg))
	request.Header.Set("Accept-Encoding", "gzip")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", recorder.Code, recorder.Body.String())
	}
	if got := recorder.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}

	reader, err := gzip.NewReader(recorder.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("decompressing response: %v", err)
	}
	if !bytes.Equal(decoded, dwg) {
		t.Error("decompressed response does not match the engine output")
	}
}

func TestConvertWrongExtension(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `cp "$3" "$2"`), 1<<20)

	body, contentType := multipartBody(t, "file", "drawing.pdf", []byte("not a drawing"))
	request := httptest.NewRequest(http.MethodPost, "/convert", body)
	request.Header.Set("Content-Type", contentType)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	payload := decodeErrorPayload(t, recorder.Body)
	if payload.Kind != string(convert.KindInvalidInput) {
		t.Errorf("kind = %q, want InvalidInput", payload.Kind)
	}
	if !strings.Contains(payload.Message, ".dwg") {
		t.Errorf("message %q does not mention the required extension", payload.Message)
	}
	if payload.RequestID == "" {
		t.Error("error payload missing request_id")
	}
}

func TestConvertMissingFileField(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `cp "$3" "$2"`), 1<<20)

	body, contentType := multipartBody(t, "attachment", "floorplan.dwg", []byte("drawing"))
	request := httptest.NewRequest(http.MethodPost, "/convert", body)
	request.Header.Set("Content-Type", contentType)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	payload := decodeErrorPayload(t, recorder.Body)
	if payload.Kind != string(convert.KindInvalidInput) {
		t.Errorf("kind = %q, want InvalidInput", payload.Kind)
	}
}

func TestConvertMissingBoundary(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `cp "$3" "$2"`), 1<<20)

	request := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader("garbage"))
	request.Header.Set("Content-Type", "multipart/form-data")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	payload := decodeErrorPayload(t, recorder.Body)
	if payload.Kind != string(convert.KindInvalidInput) {
		t.Errorf("kind = %q, want InvalidInput", payload.Kind)
	}
}

func TestConvertEmptyBody(t *testing.T) {
	script, countPath := testutil.CountingEngineScript(t, `cp "$3" "$2"`)
	handler := testHandler(t, script, 1<<20)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/convert", nil))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	payload := decodeErrorPayload(t, recorder.Body)
	if payload.Kind != string(convert.KindInvalidInput) {
		t.Errorf("kind = %q, want InvalidInput", payload.Kind)
	}
	if got := testutil.Invocations(t, countPath); got != 0 {
		t.Errorf("engine ran %d times for an empty upload, want 0", got)
	}
}

func TestConvertOversizeUpload(t *testing.T) {
	script, countPath := testutil.CountingEngineScript(t, `cp "$3" "$2"`)
	handler := testHandler(t, script, 64)

	oversized := bytes.Repeat([]byte("x"), 1024)
	request := httptest.NewRequest(http.MethodPost, "/convert", bytes.NewReader(oversized))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body: %s)", recorder.Code, recorder.Body.String())
	}
	payload := decodeErrorPayload(t, recorder.Body)
	if payload.Kind != string(convert.KindInvalidInput) {
		t.Errorf("kind = %q, want InvalidInput", payload.Kind)
	}
	if !strings.Contains(payload.Message, "size limit") {
		t.Errorf("message %q does not mention the size limit", payload.Message)
	}
	if got := testutil.Invocations(t, countPath); got != 0 {
		t.Errorf("engine ran %d times for an oversized upload, want 0", got)
	}
}

func TestConvertEngineFailure(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `echo "invalid DWG header" >&2; exit 3`), 1<<20)

	request := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader("corrupt drawing"))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 (body: %s)", recorder.Code, recorder.Body.String())
	}
	payload := decodeErrorPayload(t, recorder.Body)
	if payload.Kind != string(convert.KindEngineFailure) {
		t.Errorf("kind = %q, want EngineFailure", payload.Kind)
	}
	if !strings.Contains(payload.Message, "invalid DWG header") {
		t.Errorf("message %q does not carry the engine diagnostic", payload.Message)
	}
}

func TestConvertTimeout(t *testing.T) {
	logger := testLogger()
	manager, err := workspace.NewManager(workspace.ManagerConfig{
		Root:   filepath.Join(t.TempDir(), "workspaces"),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	runner := engine.NewRunner(engine.RunnerConfig{
		BinaryPath:   testutil.EngineScript(t, `sleep 600`),
		GracePeriod:  50 * time.Millisecond,
		CaptureLimit: 4096,
		Logger:       logger,
	})
	orchestrator := convert.NewOrchestrator(convert.OrchestratorConfig{
		Workspaces: manager,
		Runner:     runner,
		Admission:  limiter.New(1, 0),
		Timeout:    200 * time.Millisecond,
		Logger:     logger,
	})
	handler := NewConvertHandler(ConvertHandlerConfig{
		Orchestrator:   orchestrator,
		MaxUploadBytes: 1 << 20,
		Logger:         logger,
	})

	request := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader("drawing"))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504 (body: %s)", recorder.Code, recorder.Body.String())
	}
	payload := decodeErrorPayload(t, recorder.Body)
	if payload.Kind != string(convert.KindTimedOut) {
		t.Errorf("kind = %q, want TimedOut", payload.Kind)
	}
}

func TestNewConvertHandlerPanicsOnMissingConfig(t *testing.T) {
	handler := testHandler(t, testutil.EngineScript(t, `cp "$3" "$2"`), 1<<20)

	cases := []struct {
		name   string
		config ConvertHandlerConfig
	}{
		{"missing orchestrator", ConvertHandlerConfig{MaxUploadBytes: 1, Logger: testLogger()}},
		{"missing upload limit", ConvertHandlerConfig{Orchestrator: handler.orchestrator, Logger: testLogger()}},
		{"missing logger", ConvertHandlerConfig{Orchestrator: handler.orchestrator, MaxUploadBytes: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			NewConvertHandler(tc.config)
		})
	}
}
