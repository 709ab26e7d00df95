package roles

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cuemby/anvil/pkg/log"
)

// Matcher decides whether a role or task name matches a reference
type Matcher interface {
	Match(name string) bool
}

// ExactMatcher matches a single literal name
type ExactMatcher string

func (m ExactMatcher) Match(name string) bool {
	return string(m) == name
}

// GlobMatcher matches shell-style patterns such as "deploy_*" or "ceph-?"
type GlobMatcher string

func (m GlobMatcher) Match(name string) bool {
	ok, err := doublestar.Match(string(m), name)
	return err == nil && ok
}

// RegexMatcher matches names against a regular expression anchored at the
// start of the name
type RegexMatcher struct {
	re *regexp.Regexp
}

func (m RegexMatcher) Match(name string) bool {
	return m.re.MatchString(name)
}

// NewMatcher picks the matching policy for a reference:
//
//	/expr/    regular expression
//	a*, a?b   glob pattern
//	anything  exact name
//
// Invalid patterns fall back to exact matching.
func NewMatcher(pattern string) Matcher {
	if len(pattern) > 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		expr := pattern[1 : len(pattern)-1]
		re, err := regexp.Compile("^(?:" + expr + ")")
		if err == nil {
			return RegexMatcher{re: re}
		}
		logger := log.WithComponent("roles")
		logger.Warn().Err(err).Str("pattern", pattern).Msg("Invalid regular expression, using exact match")
		return ExactMatcher(pattern)
	}
	if strings.ContainsAny(pattern, "*?[{") && doublestar.ValidatePattern(pattern) {
		return GlobMatcher(pattern)
	}
	return ExactMatcher(pattern)
}

// IsExact reports whether m only matches one literal name
func IsExact(m Matcher) bool {
	_, ok := m.(ExactMatcher)
	return ok
}
