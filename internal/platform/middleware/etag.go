package middleware

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ETagConfig controls ETag.
type ETagConfig struct {
	// CacheControl is sent with every tagged response.
	CacheControl string
	// Skip lists paths left untouched.
	Skip []string
}

// DefaultETagConfig makes clients revalidate every time.
func DefaultETagConfig() ETagConfig {
	return ETagConfig{CacheControl: "private, no-cache"}
}

// bufferedResponseWriter holds the body back so it can be hashed before it
// is sent.
type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	buf        bytes.Buffer
	statusCode int
}

func (w *bufferedResponseWriter) Header() http.Header         { return w.writer.Header() }
func (w *bufferedResponseWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }
func (w *bufferedResponseWriter) WriteHeader(code int)        { w.statusCode = code }

func (w *bufferedResponseWriter) flush() error {
	w.writer.WriteHeader(w.statusCode)
	if w.buf.Len() == 0 {
		return nil
	}
	_, err := w.writer.Write(w.buf.Bytes())
	return err
}

// ETag tags successful GET and HEAD responses with a weak validator over the
// body and answers a matching If-None-Match with 304.
func ETag(cfg ETagConfig) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(cfg.Skip))
	for _, p := range cfg.Skip {
		skip[p] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			if skip[req.URL.Path] {
				return next(c)
			}

			res := c.Response()
			orig := res.Writer
			buf := &bufferedResponseWriter{writer: orig, statusCode: http.StatusOK}
			res.Writer = buf
			err := next(c)
			res.Writer = orig
			if err != nil {
				// Nothing useful was buffered; let the error handler respond.
				res.Committed = false
				return err
			}

			if buf.statusCode != http.StatusOK {
				return buf.flush()
			}

			etag := computeETag(buf.buf.Bytes())
			h := res.Header()
			h.Set("ETag", etag)
			if cfg.CacheControl != "" {
				h.Set("Cache-Control", cfg.CacheControl)
			}
			if inm := req.Header.Get("If-None-Match"); inm != "" && etagMatch(inm, etag) {
				h.Del(echo.HeaderContentType)
				h.Del(echo.HeaderContentLength)
				res.Status = http.StatusNotModified
				orig.WriteHeader(http.StatusNotModified)
				return nil
			}
			return buf.flush()
		}
	}
}

// computeETag returns a weak ETag based on the MD5 hash of the body.
func computeETag(body []byte) string {
	return fmt.Sprintf(`W/"%x"`, md5.Sum(body))
}

// etagMatch reports whether an If-None-Match value names etag. Comparison is
// weak and "*" matches anything.
func etagMatch(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "*" {
		return true
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}
