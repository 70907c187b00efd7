package agent

// DetectLanguageHint guesses the spoken language of text from its ASCII
// character ratio. Summaries are rendered in English even when the interview
// ran in another language, so a mostly-ASCII text gets an explicit English
// hint; anything else is left to the model's judgment.
func DetectLanguageHint(text string) string {
	if text == "" {
		return ""
	}
	ascii := 0
	total := 0
	for _, r := range text {
		total++
		if r < 128 {
			ascii++
		}
	}
	if float64(ascii)/float64(total) >= 0.7 {
		return "English"
	}
	return ""
}
