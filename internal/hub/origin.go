// Package hub implements the endpoint hub (spec §4.5): composing a
// channel, a dispatcher, and a pending-ops registry behind a shared
// open/close/destroy lifecycle, and enforcing the origin policy that
// gates every inbound envelope before it reaches a type handler.
package hub

import (
	"regexp"
)

// WildcardOrigin accepts every origin. Using it opts out of origin
// checking entirely — the caller's responsibility, mirroring the real
// protocol's targetOrigin: '*' escape hatch.
const WildcardOrigin = "*"

// OriginPolicy decides whether an inbound envelope's reported origin is
// acceptable (§4.5). Exactly one of the three mechanisms applies, in
// this priority order: Validate (a predicate) if set, else Allowed (a
// list of exact strings or "re:<pattern>" regexes), else — if neither is
// set — reject everything (a hub with no policy configured accepts
// nothing, matching "fail closed" rather than "fail open").
type OriginPolicy struct {
	// Allowed entries are either an exact origin string, the wildcard
	// "*", or a regular expression prefixed with "re:".
	Allowed []string

	// Validate, if non-nil, takes precedence over Allowed entirely.
	Validate func(origin string) bool
}

// Allow builds an OriginPolicy whose only entry is the wildcard, so it
// accepts every origin.
func Allow() OriginPolicy { return OriginPolicy{Allowed: []string{WildcardOrigin}} }

// AllowExact builds an OriginPolicy from a list of Allowed entries:
// exact origins, the wildcard, or "re:<pattern>" regexes.
func AllowExact(origins ...string) OriginPolicy {
	return OriginPolicy{Allowed: origins}
}

// AllowFunc builds an OriginPolicy from a predicate.
func AllowFunc(fn func(origin string) bool) OriginPolicy {
	return OriginPolicy{Validate: fn}
}

// Check reports whether origin is acceptable under this policy.
func (p OriginPolicy) Check(origin string) bool {
	if p.Validate != nil {
		return p.Validate(origin)
	}
	for _, entry := range p.Allowed {
		if entry == WildcardOrigin {
			return true
		}
		if pattern, ok := cutPrefix(entry, "re:"); ok {
			if re, err := regexp.Compile(pattern); err == nil && re.MatchString(origin) {
				return true
			}
			continue
		}
		if entry == origin {
			return true
		}
	}
	return false
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):], true
	}
	return "", false
}
