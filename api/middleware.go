package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vinayprograms/ans/errors"
	"github.com/vinayprograms/ans/logging"
	"github.com/vinayprograms/ans/telemetry"
)

// requestLogger continues any inbound trace and logs each request once it
// completes.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := telemetry.ExtractHTTP(c.Request.Context(), c.Request.Header)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		log := s.log
		if id := telemetry.TraceID(ctx); id != "" {
			log = log.WithTraceID(id)
		}
		log.Request(c.Request.Method, path, c.Writer.Status(), time.Since(start))
		if last := c.Errors.Last(); last != nil {
			logFailure(log, last.Err)
		}
	}
}

// logFailure records transient and server-side failures. Server faults
// carry the full structured error, cause included.
func logFailure(log *logging.Logger, err error) {
	fields := map[string]interface{}{"code": string(errors.Code(err))}
	switch {
	case errors.IsTransient(err):
		fields["retryable"] = errors.IsRetryable(err)
		fields["error"] = err.Error()
		log.Warn("transient_failure", fields)
	case errors.HTTPStatus(err) >= http.StatusInternalServerError:
		if regErr := errors.AsRegistryError(err); regErr != nil {
			if data, jerr := json.Marshal(regErr); jerr == nil {
				fields["error"] = string(data)
			}
		} else {
			fields["error"] = err.Error()
		}
		log.Error("request_failed", fields)
	}
}

// recoverPanic answers a panicking handler with the usual error body.
func (s *Server) recoverPanic(c *gin.Context, recovered any) {
	writeError(c, errors.Wrap(errors.RecoverPanic(recovered), "Internal server error"))
	c.Abort()
}

// limitBody caps request bodies at MaxBodyBytes.
func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)
		}
		c.Next()
	}
}

// rateLimit rejects clients that have spent their token budget with 429
// and a Retry-After header in whole seconds.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := s.config.Limiter
		client := c.ClientIP()
		if limiter.Allow(client) {
			c.Next()
			return
		}
		wait := limiter.RetryAfter(client)
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		s.log.Warn("rate_limited", map[string]interface{}{
			"client": client,
			"path":   c.Request.URL.Path,
		})
		writeError(c, errors.RateLimited("Too many requests"))
		c.Abort()
	}
}
