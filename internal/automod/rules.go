package automod

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/titanous/json5"
)

// Category classifies why content was flagged. Community notices use the
// category, never the user.
type Category string

const (
	CategorySpam      Category = "Spam"
	CategoryToxic     Category = "Toxic"
	CategoryContent   Category = "Inappropriate Content"
	CategoryLinks     Category = "Unauthorized Links"
	CategoryInvites   Category = "Invite Sharing"
	CategoryCaps      Category = "Caps"
	CategoryOffTopic  Category = "Off-Topic"
	CategoryDuplicate Category = "Duplicate"
	CategoryGuidelines Category = "Guidelines"
)

// Pattern categories backed by regex sets.
const (
	patternProfanity = "profanity"
	patternPhone     = "phone"
	patternAddress   = "address"
	patternLink      = "link"
	patternInvite    = "invite"
)

var defaultPatterns = map[string][]string{
	patternProfanity: {
		`(?i)\bf+u+c+k+`,
		`(?i)\bs+h+i+t+\b`,
		`(?i)\bb+i+t+c+h`,
		`(?i)\ba+s+s+h+o+l+e`,
		`(?i)\bc+u+n+t`,
		`(?i)\bn+i+g+g+`,
		`(?i)\bd+i+c+k+h+e+a+d`,
		`(?i)\bw+h+o+r+e`,
	},
	patternPhone: {
		`\+?\d{1,3}[-.\s]?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}\b`,
		`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`,
	},
	patternAddress: {
		`(?i)\b\d{1,5}\s+\w+(\s\w+)*\s+(street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way)\b`,
		`(?i)\bapt\.?\s*#?\d+\b`,
	},
	patternLink: {
		`(?i)\bhttps?://\S+`,
		`(?i)\bwww\.\S+`,
	},
	patternInvite: {
		`(?i)\bdiscord\.gg/\S+`,
		`(?i)\bdiscord(app)?\.com/invite/\S+`,
	},
}

const compiledCacheSize = 16

// RuleSet holds the regex pattern sets with a TTL'd compile cache. Patterns
// compile on first use; a rule update invalidates the affected category. An
// invalid pattern is logged and treated as "no match"; an operator typo must
// never flag messages.
type RuleSet struct {
	ttl time.Duration

	mu       sync.RWMutex
	patterns map[string][]string
	compiled *expirable.LRU[string, []*regexp.Regexp]
}

// NewRuleSet returns the built-in rules with the given compile-cache TTL.
func NewRuleSet(ttl time.Duration) *RuleSet {
	patterns := make(map[string][]string, len(defaultPatterns))
	for k, v := range defaultPatterns {
		patterns[k] = append([]string(nil), v...)
	}
	return &RuleSet{
		ttl:      ttl,
		patterns: patterns,
		compiled: expirable.NewLRU[string, []*regexp.Regexp](compiledCacheSize, nil, ttl),
	}
}

// Matches reports whether any pattern in the category matches content.
func (rs *RuleSet) Matches(category, content string) bool {
	for _, re := range rs.compile(category) {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

func (rs *RuleSet) compile(category string) []*regexp.Regexp {
	if cached, ok := rs.compiled.Get(category); ok {
		return cached
	}

	rs.mu.RLock()
	raw := rs.patterns[category]
	rs.mu.RUnlock()

	compiled := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			slog.Warn("automod: invalid pattern skipped", "category", category, "pattern", p, "error", err)
			continue
		}
		compiled = append(compiled, re)
	}
	rs.compiled.Add(category, compiled)
	return compiled
}

// SetPatterns replaces one category's patterns and drops its compiled cache.
func (rs *RuleSet) SetPatterns(category string, patterns []string) {
	rs.mu.Lock()
	rs.patterns[category] = append([]string(nil), patterns...)
	rs.mu.Unlock()
	rs.compiled.Remove(category)
}

// LoadFile overlays pattern overrides from a JSON5 file, e.g.
// { profanity: ["..."], invite: ["..."] }. Categories absent from the file
// keep their current patterns.
func (rs *RuleSet) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}
	var overrides map[string][]string
	if err := json5.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse rules file: %w", err)
	}
	for category, patterns := range overrides {
		rs.SetPatterns(category, patterns)
	}
	slog.Info("automod rules reloaded", "path", path, "categories", len(overrides))
	return nil
}
