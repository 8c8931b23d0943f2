// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/draftbridge/draftbridge/lib/convert"
	"github.com/draftbridge/draftbridge/lib/netutil"
)

//go:embed openapi.json
var openAPIDocument []byte

const banner = "DWG to DXF Converter API\n\nEndpoints:\n- POST /convert - Upload DWG file to convert to DXF\n"

// ConvertHandler is the HTTP surface of the conversion service. It
// owns routing, upload extraction and validation, and response
// shaping; everything between "bytes received" and "bytes to send"
// is the orchestrator's job.
type ConvertHandler struct {
	orchestrator   *convert.Orchestrator
	maxUploadBytes int64
	logger         *slog.Logger
	mux            *http.ServeMux
}

// ConvertHandlerConfig configures a ConvertHandler.
type ConvertHandlerConfig struct {
	// Orchestrator runs conversions. Required.
	Orchestrator *convert.Orchestrator

	// MaxUploadBytes caps the request body size. Required.
	MaxUploadBytes int64

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// NewConvertHandler creates the handler and its route table. Panics
// on missing dependencies — these are wiring mistakes, not runtime
// conditions.
func NewConvertHandler(config ConvertHandlerConfig) *ConvertHandler {
	if config.Orchestrator == nil {
		panic("main.ConvertHandler: Orchestrator is required")
	}
	if config.MaxUploadBytes <= 0 {
		panic("main.ConvertHandler: MaxUploadBytes must be positive")
	}
	if config.Logger == nil {
		panic("main.ConvertHandler: Logger is required")
	}

	handler := &ConvertHandler{
		orchestrator:   config.Orchestrator,
		maxUploadBytes: config.MaxUploadBytes,
		logger:         config.Logger,
		mux:            http.NewServeMux(),
	}
	handler.mux.HandleFunc("GET /{$}", handler.handleBanner)
	handler.mux.HandleFunc("GET /healthz", handler.handleHealth)
	handler.mux.HandleFunc("GET /openapi.json", handler.handleOpenAPI)
	handler.mux.HandleFunc("POST /convert", handler.handleConvert)
	return handler
}

func (h *ConvertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *ConvertHandler) handleBanner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, banner)
}

func (h *ConvertHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}

func (h *ConvertHandler) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(openAPIDocument)
}

// handleConvert is the conversion endpoint. The body is capped with
// MaxBytesReader before anything reads it, so an oversized upload is
// rejected during the streaming copy into the workspace without ever
// being buffered whole.
func (h *ConvertHandler) handleConvert(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	started := time.Now()

	// A declared length over the limit is rejected before any
	// resources are committed. Chunked and lying clients are caught
	// by MaxBytesReader during the streaming copy instead.
	if r.ContentLength > h.maxUploadBytes {
		h.writeError(w, r, requestID, convert.NewError(convert.KindInvalidInput, "uploaded file exceeds the size limit"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	body, filename, extractErr := h.extractUpload(r)
	if extractErr != nil {
		h.writeError(w, r, requestID, extractErr)
		return
	}

	outcome, convertErr := h.orchestrator.Convert(r.Context(), convert.Request{
		ID:       requestID,
		Filename: filename,
		Body:     body,
	})
	if convertErr != nil {
		h.writeError(w, r, requestID, convertErr)
		return
	}

	encoding := netutil.NegotiateEncoding(r.Header.Get("Accept-Encoding"))

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", requestID+".dxf"))
	w.Header().Set("X-Request-Id", requestID)
	w.Header().Set("X-Content-Digest", "blake3:"+outcome.Digest)
	if err := netutil.EncodeResponse(w, outcome.DXF, encoding); err != nil {
		h.logger.Error("writing conversion response",
			"request_id", requestID,
			"error", err,
		)
		return
	}

	h.logger.Info("conversion served",
		"request_id", requestID,
		"size", outcome.Size,
		"encoding", string(encoding),
		"engine_duration", outcome.EngineDuration,
		"total_duration", time.Since(started),
	)
}

// extractUpload locates the DWG bytes in the request. A multipart
// form must carry a "file" field whose filename ends in .dwg; any
// other content type is treated as a raw DWG body. The returned
// reader streams from the network — nothing is buffered here.
func (h *ConvertHandler) extractUpload(r *http.Request) (io.Reader, string, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return sizeLimitReader{r.Body}, "", nil
	}

	form, err := r.MultipartReader()
	if err != nil {
		return nil, "", convert.NewError(convert.KindInvalidInput, "malformed multipart request: "+err.Error())
	}
	for {
		part, err := form.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, "", convert.NewError(convert.KindInvalidInput, `multipart form has no "file" field`)
		}
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				return nil, "", convert.NewError(convert.KindInvalidInput, "uploaded file exceeds the size limit")
			}
			return nil, "", convert.NewError(convert.KindInvalidInput, "reading multipart form: "+err.Error())
		}
		if part.FormName() != "file" {
			continue
		}
		filename := part.FileName()
		if filename == "" {
			return nil, "", convert.NewError(convert.KindInvalidInput, "no filename provided")
		}
		if !strings.HasSuffix(strings.ToLower(filename), ".dwg") {
			return nil, "", convert.NewError(convert.KindInvalidInput, "file must be a .dwg file")
		}
		return sizeLimitReader{part}, filename, nil
	}
}

// sizeLimitReader translates the MaxBytesReader limit error into the
// size sentinel the orchestrator classifies, keeping the convert
// package free of HTTP knowledge.
type sizeLimitReader struct {
	inner io.Reader
}

func (s sizeLimitReader) Read(p []byte) (int, error) {
	n, err := s.inner.Read(p)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return n, convert.ErrInputTooLarge
		}
	}
	return n, err
}

// errorPayload is the JSON error body.
type errorPayload struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (h *ConvertHandler) writeError(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	classified := convert.Classify(err)

	// A disconnected client gets nothing: the connection is gone and
	// writing a status would just mislabel the access log.
	if classified.Kind == convert.KindCancelled && r.Context().Err() != nil {
		h.logger.Info("conversion abandoned by client", "request_id", requestID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", requestID)
	w.WriteHeader(classified.Kind.HTTPStatus())
	if encodeErr := json.NewEncoder(w).Encode(errorPayload{
		Kind:      string(classified.Kind),
		Message:   classified.Message,
		RequestID: requestID,
	}); encodeErr != nil {
		h.logger.Error("writing error response",
			"request_id", requestID,
			"error", encodeErr,
		)
	}
}
