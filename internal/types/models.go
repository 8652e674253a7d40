package types

import "encoding/json"

// ExtractRequest is the input of audio extraction.
type ExtractRequest struct {
	VideoURL      string `json:"video_url"`
	ProcessFolder string `json:"process_folder"`
}

// VoiceRequest is the input of voice extraction.
type VoiceRequest struct {
	VideoURL      string `json:"video_url"`
	ProcessFolder string `json:"process_folder"`
	VoiceID       string `json:"voice_id"`
}

// AudioArtifact is the stored mp3 plus its raw bytes.
type AudioArtifact struct {
	Location string `json:"location"`
	Data     []byte `json:"-"`
}

// VoiceArtifact carries voice metadata as opaque JSON; nothing downstream reads its schema.
type VoiceArtifact struct {
	Location string          `json:"location"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type TranscriptionRequest struct {
	AudioURL      string `json:"audio_url"`
	VideoURL      string `json:"video_url"`
	ProcessFolder string `json:"process_folder"`
}

type Transcript struct {
	Location string `json:"location"`
	Text     string `json:"text"`
}

// Notice lists every artifact of a finished run for the notification channels.
type Notice struct {
	VideoURL         string `json:"video_url"`
	AudioURL         string `json:"audio_url"`
	TranscriptionURL string `json:"transcription_url"`
	VoiceURL         string `json:"voice_url"`
	ProcessFolder    string `json:"process_folder"`
}

type ChatRequest struct {
	WebhookURL string `json:"webhook_url"`
	Notice
}

type EmailRequest struct {
	Recipient string `json:"recipient"`
	Notice
}
