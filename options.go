package exporter

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/FindoraNetwork/findora-exporter/target"
)

// exporterConfig holds mutable state during Exporter construction.
type exporterConfig struct {
	targets         []target.Target
	tickInterval    time.Duration
	workers         int
	listenAddr      string
	pushOnStart     bool
	clientTimeout   time.Duration
	ratePerSecond   float64
	rateBurst       int
	logger          *slog.Logger
	collectors      map[target.Kind]CollectFunc
	statusCallbacks []func(Result)
}

// Option is a function that configures an [Exporter] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*exporterConfig) error

// WithTargets adds targets to the polling list.
//
// Can be called multiple times. At least one target must be configured for
// [New] to succeed.
//
// Example:
//
//	exp, err := exporter.New(
//	    exporter.WithTargets(consensus, supply),
//	)
func WithTargets(targets ...target.Target) Option {
	return func(cfg *exporterConfig) error {
		cfg.targets = append(cfg.targets, targets...)
		return nil
	}
}

// WithTickInterval sets the polling interval for targets without their own
// frequency. Defaults to 15 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithTickInterval(d time.Duration) Option {
	return func(cfg *exporterConfig) error {
		if d <= 0 {
			return errors.New("tick interval must be positive")
		}
		cfg.tickInterval = d
		return nil
	}
}

// WithWorkers sets how many targets are executed concurrently.
// Defaults to 4 if not specified.
//
// Returns an error if the value is zero or negative.
func WithWorkers(n int) Option {
	return func(cfg *exporterConfig) error {
		if n <= 0 {
			return errors.New("workers must be positive")
		}
		cfg.workers = n
		return nil
	}
}

// WithListenAddr sets the host:port the metrics server binds to.
// Defaults to 127.0.0.1:9090. Port 0 picks a free port; see [Exporter.Addr].
func WithListenAddr(addr string) Option {
	return func(cfg *exporterConfig) error {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", addr, err)
		}
		cfg.listenAddr = addr
		return nil
	}
}

// WithPushOnStart controls whether every target is executed once as soon as
// the exporter starts. Defaults to true.
func WithPushOnStart(enabled bool) Option {
	return func(cfg *exporterConfig) error {
		cfg.pushOnStart = enabled
		return nil
	}
}

// WithClientTimeout bounds each outgoing request. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithClientTimeout(d time.Duration) Option {
	return func(cfg *exporterConfig) error {
		if d <= 0 {
			return errors.New("client timeout must be positive")
		}
		cfg.clientTimeout = d
		return nil
	}
}

// WithRateLimit caps outgoing requests per host. A zero rate disables the
// limit; burst values below 1 mean 1.
//
// Returns an error if the rate is negative.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(cfg *exporterConfig) error {
		if perSecond < 0 {
			return errors.New("rate limit cannot be negative")
		}
		if burst < 1 {
			burst = 1
		}
		cfg.ratePerSecond = perSecond
		cfg.rateBurst = burst
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Exporter instance.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *exporterConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithCollector replaces the built-in collector for kind.
//
// The function receives the target's address and options and must honour
// ctx. For balance and supply kinds it should report [Reading.Amount]; the
// exporter applies the target's decimals.
//
// Example:
//
//	exp, err := exporter.New(
//	    exporter.WithTargets(t),
//	    exporter.WithCollector(target.GetPrice, func(ctx context.Context, addr string, _ target.Options) (exporter.Reading, error) {
//	        return exporter.Reading{Value: 42}, nil
//	    }),
//	)
//
// Returns an error if the kind is unknown or fn is nil.
func WithCollector(kind target.Kind, fn CollectFunc) Option {
	return func(cfg *exporterConfig) error {
		if !kind.Valid() {
			return fmt.Errorf("%w: unknown task %q", target.ErrConfig, kind)
		}
		if fn == nil {
			return errors.New("collector cannot be nil")
		}
		if cfg.collectors == nil {
			cfg.collectors = make(map[target.Kind]CollectFunc)
		}
		cfg.collectors[kind] = fn
		return nil
	}
}

// WithStatusCallback registers a function to be called on every execution.
//
// Multiple callbacks may be registered; they execute in registration order
// after the status store has been updated.
//
// Callbacks are invoked from worker goroutines, so they must be safe for
// concurrent use and should not block. Panics within callbacks are recovered
// and logged.
//
// Nil callbacks are silently ignored.
func WithStatusCallback(cb func(Result)) Option {
	return func(cfg *exporterConfig) error {
		if cb == nil {
			return nil
		}
		cfg.statusCallbacks = append(cfg.statusCallbacks, cb)
		return nil
	}
}
