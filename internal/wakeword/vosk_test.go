package wakeword

import "testing"

func TestResultTextParsing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"plain text", `{"text":"hi pod"}`, "hi pod"},
		{"padded text", `{"text":"  hi pod  "}`, "hi pod"},
		{"unknown token only", `{"text":"[unk]"}`, ""},
		{"empty", `{"text":""}`, ""},
		{"garbage", `not json`, ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := resultText(tc.payload); got != tc.want {
				t.Fatalf("resultText(%q) = %q, want %q", tc.payload, got, tc.want)
			}
		})
	}
}

func TestMatchKeywordIsCaseInsensitiveSubstring(t *testing.T) {
	t.Parallel()

	engine := &VoskEngine{cfg: VoskConfig{Keyword: "hi pod"}.withDefaults()}

	if got := engine.matchKeyword("well Hi Pod what now"); !got.Detected || got.Keyword != "hi pod" {
		t.Fatalf("expected detection, got %+v", got)
	}
	if got := engine.matchKeyword("high podium"); got.Detected {
		t.Fatalf("unexpected detection for %q", "high podium")
	}
	if got := engine.matchKeyword(""); got.Detected {
		t.Fatalf("unexpected detection for empty text")
	}
}
