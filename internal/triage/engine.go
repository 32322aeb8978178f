package triage

import "github.com/bmhenry/classy-slack-notifier/internal/rules"

// step is one entry in the ordered rule table. It either claims the message,
// returning the action to take and a diagnostic rule label, or passes.
type step func(m *Message, rs *rules.RuleSet, selfID string) (rules.Action, string, bool)

// ruleTable is the precedence order of the triage policy. Evaluation walks
// the table top to bottom and the first step that claims the message wins.
//
// Source filters come first: a sender silenced outright never reaches
// content rules. The automated filter appears twice because its precedence
// is conditional on its configured action: "drop" is a hard stop ahead of
// everything content-based, while "surface" and "classify" rank below the
// content-specific keyword and mention rules, letting those rescue bot
// traffic the operator has not silenced. Direct-message status outranks
// channel rules, which outrank only the default.
var ruleTable = []step{
	stepSelf,
	stepAutomatedDrop,
	stepKeyword,
	stepMention,
	stepAutomated,
	stepDirect,
	stepChannel,
	stepDefault,
}

// Evaluate maps a message to a triage decision under the given policy.
// Pure and deterministic: no I/O, no shared state. selfID is the recipient's
// own user ID, used to recognize self-authored messages.
func Evaluate(m *Message, rs *rules.RuleSet, selfID string) Decision {
	for _, s := range ruleTable {
		if action, label, ok := s(m, rs, selfID); ok {
			return Decision{Action: action, Rule: label}
		}
	}
	// stepDefault always claims; unreachable.
	return Decision{Action: rs.DefaultAction, Rule: "default"}
}

func stepSelf(m *Message, rs *rules.RuleSet, selfID string) (rules.Action, string, bool) {
	if selfID != "" && m.SenderID == selfID {
		return rs.Category.Self, "self", true
	}
	return "", "", false
}

// stepAutomatedDrop silences bot traffic when the automated action is drop.
// Any other automated action defers to stepAutomated, after the content rules.
func stepAutomatedDrop(m *Message, rs *rules.RuleSet, _ string) (rules.Action, string, bool) {
	if m.Automated && rs.Category.Automated == rules.ActionDrop {
		return rules.ActionDrop, "automated", true
	}
	return "", "", false
}

func stepKeyword(m *Message, rs *rules.RuleSet, _ string) (rules.Action, string, bool) {
	for i := range rs.Keywords {
		kw := &rs.Keywords[i]
		if kw.Matches(m.Body) {
			return kw.Action, "keyword:" + kw.Pattern, true
		}
	}
	return "", "", false
}

func stepMention(m *Message, rs *rules.RuleSet, _ string) (rules.Action, string, bool) {
	if m.Mentioned {
		return rs.Category.Mention, "mention", true
	}
	return "", "", false
}

func stepAutomated(m *Message, rs *rules.RuleSet, _ string) (rules.Action, string, bool) {
	if m.Automated {
		return rs.Category.Automated, "automated", true
	}
	return "", "", false
}

func stepDirect(m *Message, rs *rules.RuleSet, _ string) (rules.Action, string, bool) {
	if m.Direct {
		return rs.Category.Direct, "direct", true
	}
	return "", "", false
}

func stepChannel(m *Message, rs *rules.RuleSet, _ string) (rules.Action, string, bool) {
	if action, ok := rs.Channels[m.SourceName]; ok {
		return action, "channel:" + m.SourceName, true
	}
	return "", "", false
}

func stepDefault(_ *Message, rs *rules.RuleSet, _ string) (rules.Action, string, bool) {
	return rs.DefaultAction, "default", true
}
