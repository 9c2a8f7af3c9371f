package responder

import (
	"fmt"
	"strings"
)

const promptTemplate = `You are an emotionally intelligent AI companion who gives supportive, friendly, and empathetic replies.
Help the user feel heard and understood, and match their current emotional state.

The user said: %q

Emotion analysis:
- General emotion(s): %s
- Detailed emotion(s): %s
- %s

Write a natural, concise (2-3 sentences), supportive reply.
Do not mention the tone frequency or the detailed emotions unless it feels genuinely natural.
Acknowledge the general emotion, respond with empathy to what the user said, and invite them to keep talking.`

func BuildPrompt(req Request) string {
	general := "Neutral"
	if len(req.General) > 0 {
		general = strings.Join(req.General, ", ")
	}
	detailed := "None specifically detected"
	if len(req.Detailed) > 0 {
		detailed = strings.Join(req.Detailed, ", ")
	}
	tone := "No specific tone frequency detected."
	if req.Tone != nil {
		tone = fmt.Sprintf("Detected tone frequency: %.2f Hz.", *req.Tone)
	}
	return fmt.Sprintf(promptTemplate, req.Text, general, detailed, tone)
}
