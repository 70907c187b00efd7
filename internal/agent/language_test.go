package agent

import "testing"

func TestDetectLanguageHint(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"empty", "", ""},
		{"english", "You are at B1 level. Keep practicing!", "English"},
		{"korean", "평가를 준비하고 있습니다. 잠시만 기다려 주세요.", ""},
		{"mostly korean with numbers", "당신의 레벨은 B1 입니다. 축하합니다!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLanguageHint(tt.text); got != tt.want {
				t.Fatalf("DetectLanguageHint(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsAcknowledgment(t *testing.T) {
	p := DefaultPrompts()

	for _, transcript := range []string{
		"Okay, thank you!",
		"THANKS, bye",
		"네, 감사합니다",
		"알겠습니다, 안녕히 계세요",
	} {
		if !p.IsAcknowledgment(transcript) {
			t.Errorf("IsAcknowledgment(%q) = false, want true", transcript)
		}
	}

	for _, transcript := range []string{
		"",
		"저는 부산에서 왔어요",
		"What does that mean?",
	} {
		if p.IsAcknowledgment(transcript) {
			t.Errorf("IsAcknowledgment(%q) = true, want false", transcript)
		}
	}
}
