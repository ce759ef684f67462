// Package numerator provides human-readable sequential numbers for orders,
// shipments and returns (e.g. ORD-20260315-0007).
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict increments the stored counter for every number.
	// Sequential without gaps.
	StrategyStrict Strategy = iota

	// StrategyCached reserves ranges of numbers in memory.
	// Much faster, but may produce gaps if the process restarts.
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	// Strategy to use for number generation
	Strategy Strategy
	// RangeSize is the number of values reserved at once in Cached strategy.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{
		Strategy: StrategyStrict,
	}
}

// SequenceStore persists counters. Increment adds by to the counter stored
// under key (creating it at zero) and returns the new value.
type SequenceStore interface {
	Increment(ctx context.Context, key string, by int64) (int64, error)
}

type cachedRange struct {
	current int64
	max     int64
}

// Service provides numbering functionality.
type Service struct {
	store SequenceStore

	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

// New creates a new numerator service.
func New(store SequenceStore) *Service {
	return &Service{
		store:  store,
		ranges: make(map[string]*cachedRange),
	}
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "ORD", "RET")
	Prefix string

	// ResetPeriod: "day", "month", "year", "never".
	// The period stamp is included in the number unless ResetPeriod is "never".
	ResetPeriod string

	// PadWidth is the minimum number width (default 4)
	PadWidth int
}

// DailyConfig numbers restart every day: PREFIX-YYYYMMDD-NNNN.
func DailyConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		ResetPeriod: "day",
		PadWidth:    4,
	}
}

// GetNextNumber generates the next number for period.
func (s *Service) GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error) {
	if s == nil || s.store == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}

	if opts == nil {
		opts = DefaultOptions()
	}

	key := buildKey(cfg, period)

	var (
		num int64
		err error
	)
	switch opts.Strategy {
	case StrategyCached:
		num, err = s.getNextCached(ctx, key, opts)
	default:
		num, err = s.store.Increment(ctx, key, 1)
		if err != nil {
			err = fmt.Errorf("strict next: %w", err)
		}
	}
	if err != nil {
		return "", err
	}

	return formatNumber(cfg, period, num), nil
}

// Next generates the next daily number for prefix.
func (s *Service) Next(ctx context.Context, prefix string, period time.Time) (string, error) {
	return s.GetNextNumber(ctx, DailyConfig(prefix), nil, period)
}

// getNextCached hands out numbers from memory, reserving a new range when
// the current one is exhausted.
func (s *Service) getNextCached(ctx context.Context, key string, opts *Options) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	rng, exists := s.ranges[key]
	if !exists {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}

	if rng.current >= rng.max {
		size := opts.RangeSize
		if size <= 0 {
			size = 50
		}

		// the stored counter is the last reserved value, so the fresh range
		// is (newMax-size, newMax]
		newMax, err := s.store.Increment(ctx, key, size)
		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}
		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

func buildKey(cfg Config, period time.Time) string {
	if stamp := periodStamp(cfg.ResetPeriod, period); stamp != "" {
		return cfg.Prefix + "_" + stamp
	}
	return cfg.Prefix
}

func periodStamp(resetPeriod string, period time.Time) string {
	switch resetPeriod {
	case "day":
		return period.Format("20060102")
	case "month":
		return period.Format("200601")
	case "year":
		return period.Format("2006")
	default:
		return ""
	}
}

func formatNumber(cfg Config, period time.Time, num int64) string {
	padWidth := cfg.PadWidth
	if padWidth == 0 {
		padWidth = 4
	}

	if stamp := periodStamp(cfg.ResetPeriod, period); stamp != "" {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, stamp, padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, padWidth, num)
}

// ParseNumber extracts the numeric suffix from a formatted number.
// Returns -1 if parsing fails.
func ParseNumber(formatted string) int64 {
	idx := strings.LastIndexByte(formatted, '-')
	if idx < 0 {
		return -1
	}
	num, err := strconv.ParseInt(formatted[idx+1:], 10, 64)
	if err != nil {
		return -1
	}
	return num
}
