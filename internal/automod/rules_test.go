package automod

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRuleSetDefaults(t *testing.T) {
	rs := NewRuleSet(time.Minute)

	tests := []struct {
		category string
		content  string
		want     bool
	}{
		{patternProfanity, "oh shit", true},
		{patternProfanity, "ship it", false},
		{patternLink, "see https://example.com", true},
		{patternLink, "no links here", false},
		{patternInvite, "discord.gg/xyz", true},
		{patternInvite, "discordapp.com/invite/xyz", true},
		{patternPhone, "555-123-4567", true},
		{patternAddress, "42 Elm Avenue", true},
	}
	for _, tt := range tests {
		if got := rs.Matches(tt.category, tt.content); got != tt.want {
			t.Errorf("Matches(%s, %q) = %v, want %v", tt.category, tt.content, got, tt.want)
		}
	}
}

func TestSetPatternsInvalidatesCache(t *testing.T) {
	rs := NewRuleSet(time.Minute)

	// Warm the compile cache with the defaults.
	if !rs.Matches(patternProfanity, "what the fuck") {
		t.Fatal("default pattern should match")
	}

	rs.SetPatterns(patternProfanity, []string{`(?i)\bzork\b`})

	if rs.Matches(patternProfanity, "what the fuck") {
		t.Error("old pattern still matching after replacement")
	}
	if !rs.Matches(patternProfanity, "Zork rules") {
		t.Error("new pattern not matching")
	}
}

func TestInvalidPatternNeverMatches(t *testing.T) {
	rs := NewRuleSet(time.Minute)
	rs.SetPatterns(patternProfanity, []string{`[unclosed`, `\bvalid\b`})

	// The broken pattern is skipped; the valid one still works.
	if rs.Matches(patternProfanity, "anything at all") {
		t.Error("invalid pattern matched")
	}
	if !rs.Matches(patternProfanity, "this is valid text") {
		t.Error("valid sibling pattern lost")
	}
}

func TestLoadFileOverlay(t *testing.T) {
	rs := NewRuleSet(time.Minute)
	path := filepath.Join(t.TempDir(), "rules.json5")
	content := `{
		// custom deployment rules
		profanity: ["(?i)\\bfrak\\b"],
		invite: [],
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := rs.LoadFile(path); err != nil {
		t.Fatalf("load rules file: %v", err)
	}

	if !rs.Matches(patternProfanity, "frak this") {
		t.Error("override pattern not applied")
	}
	if rs.Matches(patternProfanity, "what the fuck") {
		t.Error("default profanity survived the override")
	}
	if rs.Matches(patternInvite, "discord.gg/xyz") {
		t.Error("emptied category still matching")
	}
	// Untouched categories keep their defaults.
	if !rs.Matches(patternLink, "https://example.com") {
		t.Error("untouched category lost its defaults")
	}
}

func TestLoadFileErrors(t *testing.T) {
	rs := NewRuleSet(time.Minute)
	if err := rs.LoadFile(filepath.Join(t.TempDir(), "missing.json5")); err == nil {
		t.Error("want error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json5")
	if err := os.WriteFile(path, []byte(`{profanity: "not an array"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := rs.LoadFile(path); err == nil {
		t.Error("want error for malformed rules")
	}
}
