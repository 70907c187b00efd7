package agent

import (
	"strings"

	"github.com/jihoonkang/malhagi/internal/realtime"
)

// DefaultTriggerReason is used when the model's tool arguments are missing or
// unparseable.
const DefaultTriggerReason = "Linguistic ceiling reached"

const interviewerInstructions = `You are a friendly, casual Korean language interviewer conducting a 5-minute voice interview in Korean to determine the user's CEFR proficiency level.

- Follow the mandatory three warm-up questions (name, hometown, hobbies) first
- Follow the four-phase structure: Warm-up, Level Check, Ceiling Test, Positive Ending
- Speak naturally in Korean at an appropriate level for the user
- DO NOT USE MORE ADVANCED LANGUAGE THAN THE LEVEL YOU ARE TESTING. Adjust question difficulty based on user responses
- Keep the conversation flowing and engaging

SESSION ENDING (MANDATORY):
When the user reaches their linguistic ceiling (struggles consistently or shows discomfort), you MUST:
1. IMMEDIATELY call the trigger_assessment function with the reason
2. DO NOT continue the conversation
3. DO NOT provide any CEFR assessment yourself
4. A specialized agent will handle the assessment

WARNING: If you do not call trigger_assessment, the session will freeze. You MUST call it when the ceiling is reached.`

const ackToolOutput = "Assessment triggered successfully. Please IMMEDIATELY tell the user in Korean: '평가를 준비하고 있습니다. 잠시만 기다려 주세요.' (Your assessment is being prepared. Please wait a moment.)"

const goodbyeMessage = "Thank you for completing the interview! Keep practicing, and you'll continue to improve. Goodbye!"

const apologyMessage = "I apologize, there was an error generating your assessment. Please try ending the session and starting a new one."

// User utterances matched during assessment delivery. A hit on any phrase
// ends the session early.
var (
	koreanAckKeywords = []string{
		"감사합니다",
		"감사",
		"고마워",
		"고맙습니다",
		"알겠습니다",
		"알겠어요",
		"알았어요",
		"안녕히",
		"안녕",
		"잘 가",
		"수고하세요",
		"좋아요",
		"괜찮아요",
	}
	englishAckKeywords = []string{
		"thank",
		"thanks",
		"bye",
		"goodbye",
		"got it",
		"understand",
		"okay",
		"ok",
		"great",
		"good",
		"see you",
	}
)

// Prompts holds the static text and tool declarations for one interview
// session. Constructed once at startup and passed to the components that need
// it rather than read from globals.
type Prompts struct {
	Instructions   string
	Voice          string
	TriggerToolOut string
	Goodbye        string
	Apology        string
	AckKeywords    []string
}

func DefaultPrompts() *Prompts {
	keywords := make([]string, 0, len(koreanAckKeywords)+len(englishAckKeywords))
	keywords = append(keywords, koreanAckKeywords...)
	keywords = append(keywords, englishAckKeywords...)
	return &Prompts{
		Instructions:   interviewerInstructions,
		Voice:          "marin",
		TriggerToolOut: ackToolOutput,
		Goodbye:        goodbyeMessage,
		Apology:        apologyMessage,
		AckKeywords:    keywords,
	}
}

// SessionConfig builds the session.update payload for the remote model.
// transcriptionLanguage is an ISO code for the input transcriber, e.g. "ko".
func (p *Prompts) SessionConfig(transcriptionLanguage string) realtime.SessionConfig {
	return realtime.SessionConfig{
		Modalities:        []string{"text", "audio"},
		Instructions:      p.Instructions,
		Voice:             p.Voice,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		InputAudioTranscription: &realtime.TranscriptionModel{
			Model:    "whisper-1",
			Language: transcriptionLanguage,
		},
		TurnDetection: &realtime.TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMS:   300,
			SilenceDurationMS: 800,
		},
		Temperature: 0.7,
		Tools: []realtime.Tool{
			{
				Type:        "function",
				Name:        "trigger_assessment",
				Description: "MANDATORY: Call when user reached linguistic ceiling.",
				Parameters: realtime.ToolParameters{
					Type: "object",
					Properties: map[string]realtime.ToolProperty{
						"reason": {
							Type:        "string",
							Description: "Brief reason for triggering assessment",
						},
					},
					Required: []string{"reason"},
				},
			},
		},
		ToolChoice: "auto",
	}
}

// IsAcknowledgment reports whether the transcript contains any of the
// configured farewell phrases. Case-insensitive substring match, first hit
// wins.
func (p *Prompts) IsAcknowledgment(transcript string) bool {
	lowered := strings.ToLower(strings.TrimSpace(transcript))
	if lowered == "" {
		return false
	}
	for _, kw := range p.AckKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
