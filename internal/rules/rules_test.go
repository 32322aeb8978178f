package rules

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	rs := Default()

	if rs.Provider != "ollama" {
		t.Errorf("Provider = %q, want %q", rs.Provider, "ollama")
	}
	if rs.UrgencyThreshold != 3 {
		t.Errorf("UrgencyThreshold = %d, want 3", rs.UrgencyThreshold)
	}
	if rs.ClassifyTimeout != 3*time.Second {
		t.Errorf("ClassifyTimeout = %v, want 3s", rs.ClassifyTimeout)
	}
	if rs.NotificationTimeout != 10*time.Second {
		t.Errorf("NotificationTimeout = %v, want 10s", rs.NotificationTimeout)
	}
	if rs.Category.Self != ActionDrop {
		t.Errorf("Category.Self = %q, want drop", rs.Category.Self)
	}
	if rs.Category.Automated != ActionDrop {
		t.Errorf("Category.Automated = %q, want drop", rs.Category.Automated)
	}
	if rs.Category.Mention != ActionSurface {
		t.Errorf("Category.Mention = %q, want surface", rs.Category.Mention)
	}
	if rs.Category.Direct != ActionSurface {
		t.Errorf("Category.Direct = %q, want surface", rs.Category.Direct)
	}
	if rs.DefaultAction != ActionClassify {
		t.Errorf("DefaultAction = %q, want classify", rs.DefaultAction)
	}
	if rs.SystemPrompt == "" {
		t.Error("SystemPrompt should not be empty")
	}
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"drop", "surface", "classify"} {
		a, err := ParseAction(valid, "rules.self")
		if err != nil {
			t.Errorf("ParseAction(%q) = %v, want nil", valid, err)
		}
		if string(a) != valid {
			t.Errorf("ParseAction(%q) = %q", valid, a)
		}
	}

	_, err := ParseAction("notify", "rules.self")
	if err == nil {
		t.Fatal("expected error for invalid action")
	}
	if !strings.Contains(err.Error(), "rules.self") {
		t.Errorf("error = %q, want it to name the field", err)
	}
}

func TestParse_FullFile(t *testing.T) {
	t.Parallel()

	data := []byte(`
provider: ollama
model: qwen3:8b
ollama_url: http://ollama.lan:11434/
classify_timeout: 5
urgency_threshold: 4
system_prompt: "rate 1-5"
notification_timeout: 15
rules:
  automated: classify
  direct: classify
channels:
  random: drop
  incidents: surface
keywords:
  - pattern: "production down"
    action: surface
  - pattern: "regex:page(r|d)"
    action: surface
  - pattern: lunch
    action: drop
`)

	rs, err := Parse(data, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if rs.Model != "qwen3:8b" {
		t.Errorf("Model = %q, want qwen3:8b", rs.Model)
	}
	if rs.OllamaURL != "http://ollama.lan:11434" {
		t.Errorf("OllamaURL = %q, want trailing slash trimmed", rs.OllamaURL)
	}
	if rs.ClassifyTimeout != 5*time.Second {
		t.Errorf("ClassifyTimeout = %v, want 5s", rs.ClassifyTimeout)
	}
	if rs.UrgencyThreshold != 4 {
		t.Errorf("UrgencyThreshold = %d, want 4", rs.UrgencyThreshold)
	}
	if rs.NotificationTimeout != 15*time.Second {
		t.Errorf("NotificationTimeout = %v, want 15s", rs.NotificationTimeout)
	}

	// Overridden categories change, untouched ones keep their defaults.
	if rs.Category.Automated != ActionClassify {
		t.Errorf("Category.Automated = %q, want classify", rs.Category.Automated)
	}
	if rs.Category.Direct != ActionClassify {
		t.Errorf("Category.Direct = %q, want classify", rs.Category.Direct)
	}
	if rs.Category.Self != ActionDrop {
		t.Errorf("Category.Self = %q, want default drop", rs.Category.Self)
	}
	if rs.Category.Mention != ActionSurface {
		t.Errorf("Category.Mention = %q, want default surface", rs.Category.Mention)
	}

	if got := rs.Channels["random"]; got != ActionDrop {
		t.Errorf("Channels[random] = %q, want drop", got)
	}
	if got := rs.Channels["incidents"]; got != ActionSurface {
		t.Errorf("Channels[incidents] = %q, want surface", got)
	}

	// Keyword order must match the file exactly.
	if len(rs.Keywords) != 3 {
		t.Fatalf("len(Keywords) = %d, want 3", len(rs.Keywords))
	}
	wantPatterns := []string{"production down", "regex:page(r|d)", "lunch"}
	for i, want := range wantPatterns {
		if rs.Keywords[i].Pattern != want {
			t.Errorf("Keywords[%d].Pattern = %q, want %q", i, rs.Keywords[i].Pattern, want)
		}
	}
}

func TestParse_EmptyFileIsDefaults(t *testing.T) {
	t.Parallel()

	rs, err := Parse([]byte(""), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rs.UrgencyThreshold != Default().UrgencyThreshold {
		t.Errorf("UrgencyThreshold = %d, want default", rs.UrgencyThreshold)
	}
}

func TestParse_UnknownKeysWarnAndLoad(t *testing.T) {
	t.Parallel()

	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	data := []byte(`
urgency_threshold: 2
frobnicate: true
rules:
  automated: classify
  bots: drop
`)

	rs, err := Parse(data, warn)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rs.UrgencyThreshold != 2 {
		t.Errorf("UrgencyThreshold = %d, want 2", rs.UrgencyThreshold)
	}

	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want 2 entries", warnings)
	}
	if !strings.Contains(warnings[0], "frobnicate") {
		t.Errorf("warnings[0] = %q, want to name frobnicate", warnings[0])
	}
	if !strings.Contains(warnings[1], "bots") {
		t.Errorf("warnings[1] = %q, want to name bots", warnings[1])
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		yaml      string
		errSubstr string
	}{
		{
			name:      "bad action value",
			yaml:      "rules:\n  direct: notify\n",
			errSubstr: "rules.direct",
		},
		{
			name:      "bad channel action",
			yaml:      "channels:\n  general: shout\n",
			errSubstr: "channels.general",
		},
		{
			name:      "threshold too low",
			yaml:      "urgency_threshold: 0\n",
			errSubstr: "urgency_threshold",
		},
		{
			name:      "threshold too high",
			yaml:      "urgency_threshold: 6\n",
			errSubstr: "urgency_threshold",
		},
		{
			name:      "non-positive classify timeout",
			yaml:      "classify_timeout: 0\n",
			errSubstr: "classify_timeout",
		},
		{
			name:      "non-positive notification timeout",
			yaml:      "notification_timeout: -1\n",
			errSubstr: "notification_timeout",
		},
		{
			name:      "keyword missing pattern",
			yaml:      "keywords:\n  - action: surface\n",
			errSubstr: "keywords[0]",
		},
		{
			name:      "keyword missing action",
			yaml:      "keywords:\n  - pattern: pager\n",
			errSubstr: "keywords[0]",
		},
		{
			name:      "malformed regex",
			yaml:      "keywords:\n  - pattern: \"regex:[unclosed\"\n    action: surface\n",
			errSubstr: "keywords[0].pattern",
		},
		{
			name:      "unknown provider",
			yaml:      "provider: bard\n",
			errSubstr: "provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.yaml), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errSubstr) {
				t.Errorf("error = %q, want substring %q", err, tt.errSubstr)
			}
		})
	}
}

func TestKeywordMatches(t *testing.T) {
	t.Parallel()

	rs, err := Parse([]byte(`
keywords:
  - pattern: "Production Down"
    action: surface
  - pattern: "regex:page(r|d)"
    action: surface
`), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	substr := rs.Keywords[0]
	if !substr.Matches("PRODUCTION DOWN in us-east-1") {
		t.Error("substring match should be case-insensitive")
	}
	if substr.Matches("all systems nominal") {
		t.Error("substring should not match unrelated text")
	}

	re := rs.Keywords[1]
	if !re.Matches("you were PAGED at 3am") {
		t.Error("regex match should be case-insensitive")
	}
	if re.Matches("page views are up") {
		t.Error("regex should follow the pattern, not a bare substring")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/rules.yaml", nil)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "read rules file") {
		t.Errorf("error = %q, want read wrap", err)
	}
}
