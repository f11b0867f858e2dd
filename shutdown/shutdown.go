// Package shutdown stops ansd components in dependency order.
//
// Handlers are grouped into phases. Lower phases stop first and every
// handler in a phase runs concurrently; the next phase starts only when
// the whole phase has returned. The daemon uses the phases below so that
// no request can register an agent after its event could still be
// delivered, and nothing touches a store after it is closed.
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.RegisterFunc("http", shutdown.PhaseHTTP, srv.Shutdown)
//	coord.RegisterFunc("emitter", shutdown.PhaseEvents, emitter.Close)
//	coord.RegisterFunc("store", shutdown.PhaseStorage, closeStore)
//
//	<-ctx.Done()
//	err := coord.ShutdownWithTimeout(0)
package shutdown

import (
	"context"
	"errors"
	"time"

	"github.com/vinayprograms/ans/logging"
)

// Phases in stop order.
const (
	// PhaseHTTP stops accepting requests and drains in-flight ones.
	PhaseHTTP = 10

	// PhaseStreams ends live event streams.
	PhaseStreams = 20

	// PhaseEvents drains queued notifications and the audit export.
	PhaseEvents = 30

	// PhaseStorage closes stores and buses.
	PhaseStorage = 40
)

// Common errors.
var (
	// ErrAlreadyShutdown is returned by Register after shutdown started.
	ErrAlreadyShutdown = errors.New("shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New("shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed.
	ErrHandlerFailed = errors.New("one or more handlers failed")
)

// Handler is implemented by components that need graceful shutdown. The
// context is cancelled when the shutdown deadline passes.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// CloserFunc adapts a context-free close function to Handler.
func CloserFunc(fn func() error) Handler {
	return HandlerFunc(func(context.Context) error { return fn() })
}

// HandlerResult is the outcome of one handler.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result is the outcome of a full shutdown.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult

	// Err is nil when every handler succeeded in time.
	Err error
}

// FailedHandlers returns the names of handlers that failed.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the coordinator.
type Config struct {
	// Timeout is used by ShutdownWithTimeout(0). Default: 30s
	Timeout time.Duration

	// ContinueOnError runs later phases after a failure. Default: true
	ContinueOnError bool

	// Logger receives one line per handler. Default: no logging
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
	}
}
