package pipeline

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"video-pipeline-go/internal/stage"
	"video-pipeline-go/internal/types"
)

// Stage ids. They key the run state, results and per-stage configuration.
const (
	StageAudio         = "audio-extractor"
	StageVoice         = "voice-extractor"
	StageTranscription = "audio-transcription"
	StageSlack         = "slack-notification"
	StageEmail         = "email-notification"
)

// Stages lists every stage id in graph order.
var Stages = []string{StageAudio, StageVoice, StageTranscription, StageSlack, StageEmail}

// AudioExtractor downloads a video and stores its audio track.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, req types.ExtractRequest) (types.AudioArtifact, error)
}

// VoiceExtractor fetches the voice profile for a video.
type VoiceExtractor interface {
	ExtractVoice(ctx context.Context, req types.VoiceRequest) (types.VoiceArtifact, error)
}

// Transcriber turns a stored audio artifact into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req types.TranscriptionRequest) (types.Transcript, error)
}

// ChatNotifier posts a run notice to a chat webhook and returns an ack id.
type ChatNotifier interface {
	NotifyChat(ctx context.Context, req types.ChatRequest) (string, error)
}

// EmailNotifier mails a run notice and returns the provider message id.
type EmailNotifier interface {
	NotifyEmail(ctx context.Context, req types.EmailRequest) (string, error)
}

// Collaborators are the external services behind each stage. They are built
// once at process start and shared by every run.
type Collaborators struct {
	Audio       AudioExtractor
	Voice       VoiceExtractor
	Transcriber Transcriber
	Chat        ChatNotifier
	Email       EmailNotifier
}

// Input triggers one run.
type Input struct {
	VideoURL        string `json:"videoUrl"`
	Email           string `json:"email"`
	SlackWebhookURL string `json:"slackWebhookUrl"`
	VoiceID         string `json:"voiceId"`
}

func (in Input) normalized() Input {
	in.VideoURL = strings.TrimSpace(in.VideoURL)
	in.Email = strings.TrimSpace(in.Email)
	in.SlackWebhookURL = strings.TrimSpace(in.SlackWebhookURL)
	in.VoiceID = strings.TrimSpace(in.VoiceID)
	return in
}

// Validate checks the only mandatory field, the video URL.
func (in Input) Validate() error {
	raw := strings.TrimSpace(in.VideoURL)
	if raw == "" {
		return stage.Validationf("video URL is required")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return stage.Validationf("video URL %q is not a valid http(s) URL", raw)
	}
	return nil
}

// Phase is a state of the run state machine.
type Phase string

const (
	PhaseStart        Phase = "start"
	PhaseExtracting   Phase = "extracting"
	PhaseTranscribing Phase = "transcribing"
	PhaseNotifying    Phase = "notifying"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// StageStatus summarizes the final attempt of one stage.
type StageStatus struct {
	OK       bool       `json:"ok"`
	Attempts int        `json:"attempts"`
	Error    string     `json:"error,omitempty"`
	Kind     stage.Kind `json:"kind,omitempty"`
}

// Delivery is the outcome of one notification channel.
type Delivery struct {
	OK    bool   `json:"ok"`
	AckID string `json:"ackId,omitempty"`
	Error string `json:"error,omitempty"`
}

// Diagnostic records a failure that did not fail the run.
type Diagnostic struct {
	Stage   string     `json:"stage"`
	Kind    stage.Kind `json:"kind"`
	Message string     `json:"message"`
}

// Result is what a caller always gets back: the success payload or a single error.
type Result struct {
	Success     bool       `json:"success"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   stage.Kind `json:"errorKind,omitempty"`
	FailedStage string     `json:"failedStage,omitempty"`
	Phase       Phase      `json:"phase"`

	RunID         string `json:"runId"`
	ProcessFolder string `json:"processFolder,omitempty"`

	Transcription     string          `json:"transcription,omitempty"`
	TranscriptionPath string          `json:"transcriptionPath,omitempty"`
	AudioPath         string          `json:"audioPath,omitempty"`
	VoiceData         json.RawMessage `json:"voiceData,omitempty"`
	VoiceDataPath     string          `json:"voiceDataPath,omitempty"`

	Notifications map[string]Delivery    `json:"notifications,omitempty"`
	Diagnostics   []Diagnostic           `json:"diagnostics,omitempty"`
	Stages        map[string]StageStatus `json:"stages,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
