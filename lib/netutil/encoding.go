// Copyright 2026 The Draftbridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O utilities for the conversion
// service.
//
// DXF is a text format and compresses well, so the converted body is
// worth encoding when the client asks for it. [NegotiateEncoding]
// picks the strongest encoding the client advertises (zstd, then
// gzip, then identity) and [EncodeResponse] writes a body through the
// matching compressor, setting the Content-Encoding header.
//
// Compression is response-side only. Request bodies arrive as raw DWG
// bytes and are size-capped before any decoding question arises.
package netutil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Encoding is a negotiated response content encoding.
type Encoding string

const (
	// EncodingIdentity: no transformation.
	EncodingIdentity Encoding = "identity"
	// EncodingGzip: gzip at default level.
	EncodingGzip Encoding = "gzip"
	// EncodingZstd: zstd at default level.
	EncodingZstd Encoding = "zstd"
)

// NegotiateEncoding picks the response encoding from an
// Accept-Encoding header value. Preference order is zstd, gzip,
// identity. Quality values are honored only as far as q=0 exclusions
// (in any of the forms RFC 9110 allows, "q=0" through "q=0.000");
// clients ranking gzip above zstd are rare enough not to matter for a
// single-endpoint service.
func NegotiateEncoding(acceptEncoding string) Encoding {
	gzipOK := false
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if qualityExcluded(params) {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "zstd":
			return EncodingZstd
		case "gzip":
			gzipOK = true
		}
	}
	if gzipOK {
		return EncodingGzip
	}
	return EncodingIdentity
}

// qualityExcluded reports whether a coding's parameters carry a zero
// q-value. An unparseable q-value does not exclude the coding.
func qualityExcluded(params string) bool {
	value, ok := strings.CutPrefix(strings.TrimSpace(strings.ToLower(params)), "q=")
	if !ok {
		return false
	}
	quality, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	return err == nil && quality == 0
}

// EncodeResponse writes body to the response writer through the given
// encoding, setting Content-Encoding when the body is transformed.
// For identity the body is written as-is with Content-Length; for
// compressed encodings the length is unknown up front and left to
// chunked transfer.
//
// The caller must set the status code and any other headers before
// calling, and must not write anything afterwards.
func EncodeResponse(writer http.ResponseWriter, body []byte, encoding Encoding) error {
	switch encoding {
	case EncodingIdentity:
		writer.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
		_, err := writer.Write(body)
		return err

	case EncodingGzip:
		writer.Header().Set("Content-Encoding", "gzip")
		compressor := gzip.NewWriter(writer)
		if _, err := compressor.Write(body); err != nil {
			return err
		}
		return compressor.Close()

	case EncodingZstd:
		writer.Header().Set("Content-Encoding", "zstd")
		compressor, err := zstd.NewWriter(writer)
		if err != nil {
			return err
		}
		if _, err := compressor.Write(body); err != nil {
			compressor.Close()
			return err
		}
		return compressor.Close()

	default:
		return fmt.Errorf("unknown encoding %q", encoding)
	}
}
