// Package logging provides config-driven categorized structured logging
// for KATO's components, backed by zap. Each component gets its own
// Category; loggers are created lazily and cached per category.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Category identifies the KATO subsystem emitting a log line.
type Category string

const (
	CategorySymbol     Category = "symbol"
	CategoryPattern    Category = "pattern"
	CategoryIndex      Category = "index"
	CategoryFilter     Category = "filter"
	CategorySimilarity Category = "similarity"
	CategorySegment    Category = "segment"
	CategoryMetric     Category = "metric"
	CategoryRank       Category = "rank"
	CategorySession    Category = "session"
	CategoryEngine     Category = "engine"
	CategoryStore      Category = "store"
	CategoryAudit      Category = "audit"
)

// Options configures the process-wide base logger.
type Options struct {
	// Development enables human-readable console output instead of JSON;
	// intended for local CLI use (cmd/katoctl).
	Development bool
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
}

var (
	mu      sync.RWMutex
	base    *zap.Logger
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Init builds the process-wide base logger. Safe to call multiple times;
// the last call wins. If never called, Get lazily initializes a sane
// production default.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	lvl := parseLevel(opts.Level)

	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = lvl

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	base = l
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

func parseLevel(s string) zap.AtomicLevel {
	lvl := zap.NewAtomicLevel()
	if s == "" {
		s = "info"
	}
	_ = lvl.UnmarshalText([]byte(s))
	return lvl
}

func ensureInit() {
	mu.RLock()
	ready := base != nil
	mu.RUnlock()
	if !ready {
		_ = Init(Options{Level: "info"})
	}
}

// Get returns (or lazily creates) a SugaredLogger tagged with the given
// category, caching one *Logger per category.
func Get(category Category) *zap.SugaredLogger {
	ensureInit()

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := base.With(zap.String("component", string(category))).Sugar()
	loggers[category] = l
	return l
}

// Sync flushes all buffered log entries. Call before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// Timer measures the wall time of an operation and logs it at Debug level
// on Stop. The filter executor times each stage with it when
// enable_filter_metrics is set.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing op under category.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop logs the elapsed duration since StartTimer.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugw("timer", "op", t.op, "elapsed_ms", elapsed.Milliseconds())
	return elapsed
}
