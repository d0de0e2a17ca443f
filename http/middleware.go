package http

import (
	gohttp "net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nidhoggr/tilefetch/logger"
)

func requestLogger(l logger.Logger) func(gohttp.Handler) gohttp.Handler {
	return func(next gohttp.Handler) gohttp.Handler {
		fn := func(w gohttp.ResponseWriter, r *gohttp.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				l.Debug("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"elapsed", time.Since(start).String(),
					"remote", r.RemoteAddr,
					"user_agent", r.UserAgent(),
				)
			}()
			next.ServeHTTP(ww, r)
		}
		return gohttp.HandlerFunc(fn)
	}
}

func recoverer(l logger.Logger) func(gohttp.Handler) gohttp.Handler {
	return func(next gohttp.Handler) gohttp.Handler {
		fn := func(w gohttp.ResponseWriter, r *gohttp.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.Error("panic recovered", "path", r.URL.Path, "error", rec)
					gohttp.Error(w, "internal server error", gohttp.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		}
		return gohttp.HandlerFunc(fn)
	}
}
