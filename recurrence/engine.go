package recurrence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// Engine compiles rules against an anchor and walks the resulting instants.
// Compiled rules are cached when the configuration enables it.
type Engine struct {
	cache  *RuleCache
	config EngineConfig
	logger *slog.Logger
}

// NewEngine creates a new recurrence engine instance with the default configuration
func NewEngine(opts ...Option) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig, opts...)
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Compile returns the rule anchored at anchor, from the cache when possible.
func (e *Engine) Compile(rule *Rule, anchor time.Time) mo.Result[*rrule.RRule] {
	if rule == nil {
		return mo.Err[*rrule.RRule](fmt.Errorf("%w: nil rule", ErrInvalidRule))
	}
	if e.cache != nil {
		if result, ok := e.cache.Get(rule, anchor); ok {
			return result
		}
	}

	rr, err := rule.Compile(anchor)
	result := mo.Ok(rr)
	if err != nil {
		e.logger.Debug("rule compilation failed",
			"rule_id", rule.ID,
			"rule", rule.RRuleString(),
			"error", err)
		result = mo.Err[*rrule.RRule](err)
	}

	if e.cache != nil {
		e.cache.Set(rule, anchor, result)
	}
	return result
}

// Iterator returns a forward iterator over the rule's instants starting at anchor.
func (e *Engine) Iterator(rule *Rule, anchor time.Time) (rrule.Next, error) {
	rr, err := e.Compile(rule, anchor).Get()
	if err != nil {
		return nil, err
	}
	return rr.Iterator(), nil
}

// Between returns the instants in [after, before], both bounds inclusive,
// generated by rule anchored at anchor. When MaxOccurrences is set the result
// is cut at that many instants and truncated is true.
func (e *Engine) Between(rule *Rule, anchor, after, before time.Time) (instants []time.Time, truncated bool, err error) {
	next, err := e.Iterator(rule, anchor)
	if err != nil {
		return nil, false, err
	}

	for {
		t, ok := next()
		if !ok || t.After(before) {
			break
		}
		if t.Before(after) {
			continue
		}
		if e.config.MaxOccurrences > 0 && len(instants) >= e.config.MaxOccurrences {
			e.logger.Warn("expansion truncated",
				"rule_id", rule.ID,
				"limit", e.config.MaxOccurrences,
				"range_start", after,
				"range_end", before)
			return instants, true, nil
		}
		instants = append(instants, t)
	}

	return instants, false, nil
}

// HasOccurrenceInRange reports whether any instant of rule anchored at
// anchor, lasting duration, overlaps [rangeStart, rangeEnd]. It stops at the
// first match instead of expanding the whole range.
func (e *Engine) HasOccurrenceInRange(rule *Rule, anchor time.Time, duration time.Duration, rangeStart, rangeEnd time.Time) (bool, error) {
	if rule == nil {
		// Use proper time range overlap logic: start <= rangeEnd AND end >= rangeStart
		return !anchor.After(rangeEnd) && !anchor.Add(duration).Before(rangeStart), nil
	}

	next, err := e.Iterator(rule, anchor)
	if err != nil {
		return false, fmt.Errorf("failed to check rule occurrences: %w", err)
	}
	for {
		t, ok := next()
		if !ok || t.After(rangeEnd) {
			return false, nil
		}
		if !t.Add(duration).Before(rangeStart) {
			return true, nil
		}
	}
}

// CacheStats returns statistics of the compiled-rule cache. It is the zero
// value when caching is disabled.
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

// Close releases the cache's background goroutine.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}
