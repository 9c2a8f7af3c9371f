package orchestrator

import "encoding/base64"

const (
	EventEndOfSpeech = "end_of_speech"

	TypeInterimTranscript = "interim_transcript"
	TypeFinalResponse     = "final_response"

	ListeningText = "Listening..."
)

// ClientEvent is a JSON control message from the client.
type ClientEvent struct {
	Event string `json:"event"`
}

// InterimTranscript acknowledges every audio frame.
type InterimTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// FinalResponse is sent exactly once per utterance.
type FinalResponse struct {
	Type     string `json:"type"`
	UserText string `json:"user_text"`
	BotText  string `json:"bot_text"`
	Emotion  string `json:"emotion"`
	Audio    string `json:"audio"` // base64
}

func NewFinalResponse(r PipelineResult) FinalResponse {
	return FinalResponse{
		Type:     TypeFinalResponse,
		UserText: r.UserText,
		BotText:  r.BotText,
		Emotion:  r.Emotion,
		Audio:    base64.StdEncoding.EncodeToString(r.Audio),
	}
}

func listening() InterimTranscript {
	return InterimTranscript{Type: TypeInterimTranscript, Text: ListeningText}
}
