package httpx

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contentEncodingGzip = "gzip"

type compressionCase struct {
	Handler        http.Handler
	Config         CompressionConfig
	Method         string
	AcceptEncoding string
}

func serveCompressed(t *testing.T, c compressionCase) *http.Response {
	t.Helper()
	method := c.Method
	if method == "" {
		method = http.MethodGet
	}
	req := httptest.NewRequest(method, "/api/products", nil)
	if c.AcceptEncoding != "" {
		req.Header.Set("Accept-Encoding", c.AcceptEncoding)
	}
	rec := httptest.NewRecorder()
	Compression(c.Config)(c.Handler).ServeHTTP(rec, req)
	resp := rec.Result()
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == contentEncodingGzip {
		gr, err := gzip.NewReader(resp.Body)
		require.NoError(t, err)
		defer gr.Close()
		r = gr
	}
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func jsonHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	})
}

func TestCompression_AcceptEncoding(t *testing.T) {
	body := strings.Repeat(`{"id":"A","title":"Product A"},`, 200)

	tests := []struct {
		name           string
		acceptEncoding string
		level          int
		wantGzip       bool
	}{
		{"gzip and deflate", "gzip, deflate", 6, true},
		{"deflate only", "deflate", 6, false},
		{"no header", "", 6, false},
		{"fastest level", "gzip", 1, true},
		{"best level", "gzip", 9, true},
		{"invalid level falls back", "gzip", 42, true},
		{"q=1", "gzip;q=1", 6, true},
		{"q=0.5", "gzip;q=0.5", 6, true},
		{"q=0", "gzip;q=0", 6, false},
		{"q=0.0 with spaces", "br, gzip; q=0.0", 6, false},
		{"uppercase", "GZIP", 6, true},
		{"gzip listed last", "deflate, gzip", 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serveCompressed(t, compressionCase{
				Handler:        jsonHandler(body),
				Config:         CompressionConfig{Level: tt.level},
				AcceptEncoding: tt.acceptEncoding,
			})

			if tt.wantGzip {
				assert.Equal(t, contentEncodingGzip, resp.Header.Get("Content-Encoding"))
				assert.Empty(t, resp.Header.Get("Content-Length"))
				assert.Equal(t, "Accept-Encoding", resp.Header.Get("Vary"))
			} else {
				assert.Empty(t, resp.Header.Get("Content-Encoding"))
			}
			assert.Equal(t, body, readBody(t, resp))
		})
	}
}

func TestCompression_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     bool
		wantGzip bool
	}{
		{"200", http.StatusOK, true, true},
		{"404", http.StatusNotFound, true, true},
		{"500", http.StatusInternalServerError, true, true},
		{"204", http.StatusNoContent, false, false},
		{"304", http.StatusNotModified, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.body {
					w.Header().Set("Content-Type", "application/json")
				}
				w.WriteHeader(tt.status)
				if tt.body {
					_, _ = io.WriteString(w, `{"error":"x"}`)
				}
			})
			resp := serveCompressed(t, compressionCase{Handler: handler, AcceptEncoding: "gzip"})

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.wantGzip, resp.Header.Get("Content-Encoding") == contentEncodingGzip)
		})
	}
}

func TestCompression_ContentTypes(t *testing.T) {
	tests := []struct {
		contentType string
		wantGzip    bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"text/html", true},
		{"image/svg+xml", true},
		{"image/jpeg", false},
		{"application/zip", false},
		{"video/mp4", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = io.WriteString(w, "payload")
			})
			resp := serveCompressed(t, compressionCase{Handler: handler, AcceptEncoding: "gzip"})

			assert.Equal(t, tt.wantGzip, resp.Header.Get("Content-Encoding") == contentEncodingGzip)
			assert.Equal(t, "payload", readBody(t, resp))
		})
	}
}

func TestCompression_MinSize(t *testing.T) {
	cfg := CompressionConfig{Level: 6, MinSize: 64}

	t.Run("short body goes out plain", func(t *testing.T) {
		resp := serveCompressed(t, compressionCase{Handler: jsonHandler(`{"items":[]}`), Config: cfg, AcceptEncoding: "gzip"})
		assert.Empty(t, resp.Header.Get("Content-Encoding"))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `{"items":[]}`, readBody(t, resp))
	})

	t.Run("body crossing the threshold in pieces", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			for range 10 {
				_, _ = io.WriteString(w, "0123456789")
			}
		})
		resp := serveCompressed(t, compressionCase{Handler: handler, Config: cfg, AcceptEncoding: "gzip"})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, contentEncodingGzip, resp.Header.Get("Content-Encoding"))
		assert.Equal(t, strings.Repeat("0123456789", 10), readBody(t, resp))
	})
}

func TestCompression_PassThrough(t *testing.T) {
	t.Run("HEAD", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
		})
		resp := serveCompressed(t, compressionCase{Handler: handler, Method: http.MethodHead, AcceptEncoding: "gzip"})
		assert.Empty(t, resp.Header.Get("Content-Encoding"))
	})

	t.Run("existing encoding kept", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Encoding", "br")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "already compressed")
		})
		resp := serveCompressed(t, compressionCase{Handler: handler, AcceptEncoding: "gzip"})
		assert.Equal(t, "br", resp.Header.Get("Content-Encoding"))
	})

	t.Run("sniffed content type", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "plain text body")
		})
		resp := serveCompressed(t, compressionCase{Handler: handler, AcceptEncoding: "gzip"})
		assert.Equal(t, contentEncodingGzip, resp.Header.Get("Content-Encoding"))
		assert.Equal(t, "plain text body", readBody(t, resp))
	})
}
