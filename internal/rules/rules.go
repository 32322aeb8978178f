// Package rules holds the user's triage policy: category actions, keyword
// rules, per-channel actions, the urgency threshold, and classifier settings.
// A RuleSet is loaded and fully validated once, then treated as read-only;
// reloads build a new RuleSet and swap it atomically via Source.
package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Action is a triage disposition for a message.
type Action string

const (
	// ActionDrop silently discards the message.
	ActionDrop Action = "drop"

	// ActionSurface raises an alert immediately, without classification.
	ActionSurface Action = "surface"

	// ActionClassify sends the message to the urgency classifier.
	ActionClassify Action = "classify"
)

// ParseAction parses a configured action value. field names the offending
// config location in the returned error.
func ParseAction(value, field string) (Action, error) {
	switch Action(value) {
	case ActionDrop, ActionSurface, ActionClassify:
		return Action(value), nil
	}
	return "", fmt.Errorf("invalid action %q in %s (must be one of: drop, surface, classify)", value, field)
}

// DefaultSystemPrompt is the classifier instruction used when the rules file
// does not override it.
const DefaultSystemPrompt = `You are a Slack notification triage assistant. Classify the urgency of the
following message on a scale of 1-5:

1 - Noise: automated messages, routine updates, social chatter
2 - Low: informational, no action needed soon
3 - Medium: relevant to your work, may need attention within hours
4 - High: needs your attention soon, action required
5 - Critical: immediate action required, outage, security incident, or direct request for urgent help

Respond with a JSON object containing "urgency" (integer 1-5) and "reason" (brief explanation).
`

const (
	regexPrefix = "regex:"

	defaultModel           = "llama3.2:3b"
	defaultOllamaURL       = "http://localhost:11434"
	defaultClassifyTimeout = 3 * time.Second
	defaultNotifyTimeout   = 10 * time.Second
	defaultThreshold       = 3
)

// KeywordRule matches a substring or regular expression against message
// bodies. Rules are evaluated in configured order, first match wins.
type KeywordRule struct {
	// Pattern is the raw configured pattern, including any "regex:" prefix.
	// It doubles as the rule's diagnostic label.
	Pattern string

	// Action to take when the rule matches.
	Action Action

	// re is the compiled case-insensitive expression for regex rules,
	// nil for plain substring rules.
	re *regexp.Regexp

	// needle is the lowercased substring for plain rules.
	needle string
}

// Matches reports whether the rule matches the message body.
// Both substring and regex matching are case-insensitive.
func (k *KeywordRule) Matches(body string) bool {
	if k.re != nil {
		return k.re.MatchString(body)
	}
	return strings.Contains(strings.ToLower(body), k.needle)
}

// CategoryActions are the actions keyed on message provenance.
type CategoryActions struct {
	Self      Action
	Automated Action
	Mention   Action
	Direct    Action
}

// RuleSet is the complete triage policy plus classifier connection settings.
// Immutable after Load; concurrent readers share it freely.
type RuleSet struct {
	Provider         string // "ollama" or "claude"
	Model            string
	OllamaURL        string
	ClassifyTimeout  time.Duration
	UrgencyThreshold int
	SystemPrompt     string

	Category      CategoryActions
	DefaultAction Action
	Channels      map[string]Action
	Keywords      []KeywordRule

	NotificationTimeout time.Duration
}

// Default returns the built-in policy: drop own and automated messages,
// surface mentions and DMs, classify everything else.
func Default() *RuleSet {
	return &RuleSet{
		Provider:         "ollama",
		Model:            defaultModel,
		OllamaURL:        defaultOllamaURL,
		ClassifyTimeout:  defaultClassifyTimeout,
		UrgencyThreshold: defaultThreshold,
		SystemPrompt:     DefaultSystemPrompt,
		Category: CategoryActions{
			Self:      ActionDrop,
			Automated: ActionDrop,
			Mention:   ActionSurface,
			Direct:    ActionSurface,
		},
		DefaultAction:       ActionClassify,
		Channels:            map[string]Action{},
		NotificationTimeout: defaultNotifyTimeout,
	}
}

// DefaultPath returns the conventional rules file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "rules.yaml"
	}
	return filepath.Join(home, ".config", "classy-slack-notifier", "rules.yaml")
}

// knownKeys are the top-level keys the rules file may contain. Anything else
// is reported through warn and ignored, so newer files keep working against
// older binaries.
var knownKeys = map[string]struct{}{
	"provider":             {},
	"model":                {},
	"ollama_url":           {},
	"classify_timeout":     {},
	"urgency_threshold":    {},
	"system_prompt":        {},
	"rules":                {},
	"channels":             {},
	"keywords":             {},
	"notification_timeout": {},
}

var knownRuleKeys = map[string]struct{}{
	"self":      {},
	"automated": {},
	"mention":   {},
	"direct":    {},
	"default":   {},
}

// fileRuleSet mirrors the YAML shape of the rules file.
type fileRuleSet struct {
	Provider            *string           `yaml:"provider"`
	Model               *string           `yaml:"model"`
	OllamaURL           *string           `yaml:"ollama_url"`
	ClassifyTimeout     *float64          `yaml:"classify_timeout"` // seconds
	UrgencyThreshold    *int              `yaml:"urgency_threshold"`
	SystemPrompt        *string           `yaml:"system_prompt"`
	Rules               map[string]string `yaml:"rules"`
	Channels            map[string]string `yaml:"channels"`
	Keywords            []fileKeyword     `yaml:"keywords"`
	NotificationTimeout *float64          `yaml:"notification_timeout"` // seconds
}

type fileKeyword struct {
	Pattern *string `yaml:"pattern"`
	Action  *string `yaml:"action"`
}

// WarnFunc receives non-fatal findings (unknown keys) during Load.
type WarnFunc func(format string, args ...any)

// Load reads and validates the rules file at path, merging it over the
// built-in defaults. Any validation failure is fatal: the error names the
// offending field and no partially-valid RuleSet is returned. Unknown keys
// are reported through warn and ignored.
func Load(path string, warn WarnFunc) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data, warn)
}

// Parse builds a RuleSet from raw YAML. See Load.
func Parse(data []byte, warn WarnFunc) (*RuleSet, error) {
	if warn == nil {
		warn = func(string, ...any) {}
	}

	// First pass for unknown-key detection: missing keys are a forward
	// compatibility concern, not an error.
	var top map[string]any
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	for key := range top {
		if _, ok := knownKeys[key]; !ok {
			warn("unknown rules file key %q, ignoring", key)
		}
	}

	var f fileRuleSet
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	rs := Default()
	var errs []error

	if f.Provider != nil {
		switch *f.Provider {
		case "ollama", "claude":
			rs.Provider = *f.Provider
		default:
			errs = append(errs, fmt.Errorf("invalid provider %q (must be one of: ollama, claude)", *f.Provider))
		}
	}
	if f.Model != nil {
		rs.Model = *f.Model
	}
	if f.OllamaURL != nil {
		rs.OllamaURL = strings.TrimRight(*f.OllamaURL, "/")
	}
	if f.ClassifyTimeout != nil {
		if *f.ClassifyTimeout <= 0 {
			errs = append(errs, fmt.Errorf("classify_timeout must be positive, got %v", *f.ClassifyTimeout))
		} else {
			rs.ClassifyTimeout = time.Duration(*f.ClassifyTimeout * float64(time.Second))
		}
	}
	if f.UrgencyThreshold != nil {
		if *f.UrgencyThreshold < 1 || *f.UrgencyThreshold > 5 {
			errs = append(errs, fmt.Errorf("urgency_threshold must be between 1 and 5, got %d", *f.UrgencyThreshold))
		} else {
			rs.UrgencyThreshold = *f.UrgencyThreshold
		}
	}
	if f.SystemPrompt != nil {
		rs.SystemPrompt = *f.SystemPrompt
	}
	if f.NotificationTimeout != nil {
		if *f.NotificationTimeout <= 0 {
			errs = append(errs, fmt.Errorf("notification_timeout must be positive, got %v", *f.NotificationTimeout))
		} else {
			rs.NotificationTimeout = time.Duration(*f.NotificationTimeout * float64(time.Second))
		}
	}

	// Category rules merge over defaults; unknown rule keys are ignored.
	for key, value := range f.Rules {
		if _, ok := knownRuleKeys[key]; !ok {
			warn("unknown rule key %q, ignoring", key)
			continue
		}
		action, err := ParseAction(value, "rules."+key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch key {
		case "self":
			rs.Category.Self = action
		case "automated":
			rs.Category.Automated = action
		case "mention":
			rs.Category.Mention = action
		case "direct":
			rs.Category.Direct = action
		case "default":
			rs.DefaultAction = action
		}
	}

	for channel, value := range f.Channels {
		action, err := ParseAction(value, "channels."+channel)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rs.Channels[channel] = action
	}

	// Keyword rules keep their configured order: it is the evaluation order.
	for i, kw := range f.Keywords {
		rule, err := buildKeyword(i, kw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rs.Keywords = append(rs.Keywords, rule)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rs, nil
}

// NewKeyword builds a single keyword rule from a raw pattern (optionally
// "regex:"-prefixed) and action.
func NewKeyword(pattern string, action Action) (KeywordRule, error) {
	a := string(action)
	return buildKeyword(0, fileKeyword{Pattern: &pattern, Action: &a})
}

func buildKeyword(i int, kw fileKeyword) (KeywordRule, error) {
	if kw.Pattern == nil || *kw.Pattern == "" {
		return KeywordRule{}, fmt.Errorf("keywords[%d] is missing required field 'pattern'", i)
	}
	if kw.Action == nil {
		return KeywordRule{}, fmt.Errorf("keywords[%d] is missing required field 'action'", i)
	}
	action, err := ParseAction(*kw.Action, fmt.Sprintf("keywords[%d].action", i))
	if err != nil {
		return KeywordRule{}, err
	}

	rule := KeywordRule{Pattern: *kw.Pattern, Action: action}
	if expr, ok := strings.CutPrefix(*kw.Pattern, regexPrefix); ok {
		// Regex validity is a load-time concern: evaluation assumes a
		// previously compiled pattern.
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return KeywordRule{}, fmt.Errorf("keywords[%d].pattern %q: %w", i, *kw.Pattern, err)
		}
		rule.re = re
	} else {
		rule.needle = strings.ToLower(*kw.Pattern)
	}
	return rule, nil
}
