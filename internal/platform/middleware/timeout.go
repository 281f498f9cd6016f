package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout bounds each request with a context deadline. When the
// deadline passes before the handler has started its response, the client
// gets a 504 with a JSON body at once. The handler keeps its own writer and
// header map, so anything it writes afterwards is discarded; the middleware
// still waits for it to return before giving the context back to echo. Paths
// listed in skip run without a deadline. A non-positive timeout disables the
// middleware.
func RequestTimeout(timeout time.Duration, skip ...string) echo.MiddlewareFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(c echo.Context) error {
			if skipped[c.Request().URL.Path] {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			body, _ := json.Marshal(map[string]interface{}{
				"message":    "request exceeded the time limit",
				"timeout":    timeout.String(),
				"request_id": RequestIDFrom(c),
			})

			res := c.Response()
			tw := newTimeoutWriter(res.Writer)
			res.Writer = tw

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			var err error
			select {
			case err = <-done:
				if !(errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
					res.Writer = tw.release()
					return err
				}
				tw.timeout(body)
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					tw.timeout(body)
				}
				err = <-done
			}

			res.Writer = tw.release()
			if tw.timedOut() {
				res.Status = http.StatusGatewayTimeout
				res.Size = int64(len(body))
				res.Committed = true
				return nil
			}
			return err
		}
	}
}

// timeoutWriter passes the handler's response through until the deadline.
// The handler writes headers into its own map, copied out when it commits.
type timeoutWriter struct {
	w http.ResponseWriter
	h http.Header

	mu          sync.Mutex
	wroteHeader bool
	expired     bool
}

func newTimeoutWriter(w http.ResponseWriter) *timeoutWriter {
	return &timeoutWriter{w: w, h: w.Header().Clone()}
}

func (tw *timeoutWriter) Header() http.Header { return tw.h }

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.expired || tw.wroteHeader {
		return
	}
	tw.commitLocked(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.expired {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.wroteHeader {
		tw.commitLocked(http.StatusOK)
	}
	return tw.w.Write(b)
}

func (tw *timeoutWriter) Flush() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.expired {
		return
	}
	if f, ok := tw.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (tw *timeoutWriter) commitLocked(code int) {
	dst := tw.w.Header()
	for k := range dst {
		delete(dst, k)
	}
	for k, v := range tw.h {
		dst[k] = v
	}
	tw.wroteHeader = true
	tw.w.WriteHeader(code)
}

// timeout sends the 504 unless the handler already started its response.
func (tw *timeoutWriter) timeout(body []byte) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.wroteHeader || tw.expired {
		return
	}
	tw.expired = true
	h := tw.w.Header()
	h.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	h.Set(echo.HeaderContentLength, strconv.Itoa(len(body)))
	h.Del("ETag")
	tw.w.WriteHeader(http.StatusGatewayTimeout)
	tw.w.Write(body)
	if f, ok := tw.w.(http.Flusher); ok {
		f.Flush()
	}
}

// release hands back the underlying writer. Headers of a handler that
// returned without writing are kept for the error handler.
func (tw *timeoutWriter) release() http.ResponseWriter {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if !tw.wroteHeader && !tw.expired {
		dst := tw.w.Header()
		for k, v := range tw.h {
			dst[k] = v
		}
	}
	return tw.w
}

func (tw *timeoutWriter) timedOut() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.expired
}
