package claude

import "testing"

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   string
		urgency int
		reason  string
	}{
		{
			name:    "bare object",
			reply:   `{"urgency": 4, "reason": "production incident"}`,
			urgency: 4,
			reason:  "production incident",
		},
		{
			name:    "code fence",
			reply:   "```json\n{\"urgency\": 2, \"reason\": \"routine chatter\"}\n```",
			urgency: 2,
			reason:  "routine chatter",
		},
		{
			name:    "prose wrapped",
			reply:   `Here is my assessment: {"urgency": 5, "reason": "outage"} based on the message.`,
			urgency: 5,
			reason:  "outage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, err := parseVerdict(tt.reply)
			if err != nil {
				t.Fatalf("parseVerdict: %v", err)
			}
			if v.Urgency != tt.urgency {
				t.Errorf("Urgency = %d, want %d", v.Urgency, tt.urgency)
			}
			if v.Explanation != tt.reason {
				t.Errorf("Explanation = %q, want %q", v.Explanation, tt.reason)
			}
		})
	}
}

func TestParseVerdict_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
	}{
		{"empty", ""},
		{"no object", "urgency is probably around 3"},
		{"missing urgency", `{"reason": "x"}`},
		{"missing reason", `{"urgency": 3}`},
		{"broken json", `{"urgency": 3,`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := parseVerdict(tt.reply); err == nil {
				t.Errorf("parseVerdict(%q) succeeded, want error", tt.reply)
			}
		})
	}
}
