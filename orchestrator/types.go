package orchestrator

import "github.com/vidhhya1/Conversational-Emotion-Recognizer/emotion"

// Fixed texts used when a turn has nothing better to say.
const (
	NoAudioTranscript = "No audio detected."
	NoAudioReply      = "It sounds like you didn't say anything. Please try speaking into the microphone."

	NotConfiguredReply = "I'm sorry, but I can't generate a response right now as my AI brain is not configured. Please check the API key."
	ApologyReply       = "I'm having a bit of trouble understanding right now. Could you please rephrase?"
)

// Utterance is one speech turn as it moves through the pipeline. It is never
// kept after its result is sent.
type Utterance struct {
	Audio      []byte
	Transcript string
	Tone       *float64 // nil when no pitch was found
	Emotions   emotion.Result
}

// PipelineResult is the outbound payload for one utterance. BotText and
// Emotion are never empty; UserText is empty when transcription failed.
type PipelineResult struct {
	UserText string
	BotText  string
	Emotion  string
	Audio    []byte
}

// Turn pairs an utterance with the result that was produced for it.
type Turn struct {
	Utterance Utterance
	Result    PipelineResult
	NoAudio   bool
}
