// Package ratelimit pattern-matches agent output for rate-limit and quota
// signals so the loop can back off and, eventually, fall back to a
// different agent type.
package ratelimit

import (
	"regexp"
	"strconv"
	"strings"
)

// LimitType classifies the kind of rate limit observed.
type LimitType string

const (
	LimitHTTP429       LimitType = "http_429"
	LimitRateLimit     LimitType = "rate_limit"
	LimitQuotaExceeded LimitType = "quota_exceeded"
	LimitOverloaded    LimitType = "overloaded"
	LimitClaude        LimitType = "claude_rate_limit"
	LimitOpenAI        LimitType = "openai_rate_limit"
)

// Info describes a detected rate-limit signal.
type Info struct {
	IsRateLimited  bool
	LimitType      LimitType
	RetryAfterMs   *uint64
	MatchedPattern string
}

type pattern struct {
	re        *regexp.Regexp
	limitType LimitType
}

// retryAfterPattern extracts a millisecond count following "retry" /
// "retry-after" / "retry_after" style hints, when present.
var retryAfterPattern = regexp.MustCompile(`(?i)retry[-_ ]?after[^0-9]{0,10}(\d+)`)

// Provider-specific patterns are checked before the generic rate-limit
// pattern so e.g. "openai rate limit exceeded" classifies as LimitOpenAI
// rather than the generic LimitRateLimit.
var patterns = []pattern{
	{regexp.MustCompile(`(?i)\b429\b`), LimitHTTP429},
	{regexp.MustCompile(`(?i)too many requests`), LimitRateLimit},
	{regexp.MustCompile(`(?i)quota exceeded`), LimitQuotaExceeded},
	{regexp.MustCompile(`(?i)overloaded`), LimitOverloaded},
	{regexp.MustCompile(`(?i)claude.*rate.?limit|anthropic.*rate.?limit`), LimitClaude},
	{regexp.MustCompile(`(?i)openai.*rate.?limit`), LimitOpenAI},
	{regexp.MustCompile(`(?i)rate[_ -]limit`), LimitRateLimit},
}

// Detect scans a single line of output for a known rate-limit signature.
// It returns nil when no pattern matched.
func Detect(line string) *Info {
	for _, p := range patterns {
		if m := p.re.FindString(line); m != "" {
			info := &Info{
				IsRateLimited:  true,
				LimitType:      p.limitType,
				MatchedPattern: strings.TrimSpace(m),
			}
			if sub := retryAfterPattern.FindStringSubmatch(line); len(sub) == 2 {
				if ms, err := strconv.ParseUint(sub[1], 10, 64); err == nil {
					info.RetryAfterMs = &ms
				}
			}
			return info
		}
	}
	return nil
}
