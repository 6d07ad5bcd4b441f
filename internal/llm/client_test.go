package llm

import (
	"os"
	"testing"

	"go.uber.org/zap"
)

func TestNormalizeBaseURL_StripsChatCompletionsSuffix(t *testing.T) {
	// Strips a trailing "/chat/completions" suffix
	got := normalizeBaseURL("https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions")
	want := "https://dashscope.aliyuncs.com/compatible-mode/v1"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeBaseURL_StripTrailingSlash(t *testing.T) {
	// Strips a trailing slash without "/chat/completions"
	got := normalizeBaseURL("https://api.openai.com/v1/")
	want := "https://api.openai.com/v1"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeBaseURL_StripSlashAndSuffix(t *testing.T) {
	// Strips trailing slash AND "/chat/completions" when both are present
	got := normalizeBaseURL("https://api.example.com/v1/chat/completions/")
	want := "https://api.example.com/v1"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeBaseURL_NoSuffixUnchanged(t *testing.T) {
	// Returns the URL unchanged when neither suffix is present
	got := normalizeBaseURL("https://api.deepseek.com")
	want := "https://api.deepseek.com"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeBaseURL_EmptyInput(t *testing.T) {
	// Returns "" for empty input
	if got := normalizeBaseURL(""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

// NewTier falls back to the shared OPENAI_* vars when no tier-specific
// var is set.
func TestNewTier_FallsBackToSharedVars(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "gpt-shared")
	c := NewTier("BRAIN", zap.NewNop())
	if c.model != "gpt-shared" {
		t.Fatalf("got model %q, want fallback", c.model)
	}
}

// NewTier prefers a tier-specific var over the shared fallback.
func TestNewTier_PrefersTierSpecificVar(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "gpt-shared")
	t.Setenv("BRAIN_MODEL", "gpt-brain")
	c := NewTier("BRAIN", zap.NewNop())
	if c.model != "gpt-brain" {
		t.Fatalf("got model %q, want tier-specific", c.model)
	}
}

// An empty prefix reads only the shared OPENAI_* vars.
func TestNewTier_EmptyPrefixReadsSharedOnly(t *testing.T) {
	os.Unsetenv("BRAIN_MODEL")
	t.Setenv("OPENAI_MODEL", "gpt-shared")
	c := NewTier("", zap.NewNop())
	if c.model != "gpt-shared" {
		t.Fatalf("got model %q, want gpt-shared", c.model)
	}
}
