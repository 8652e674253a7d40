package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"video-pipeline-go/internal/logger"
	"video-pipeline-go/internal/stage"
	"video-pipeline-go/internal/storage"
	"video-pipeline-go/internal/types"
)

const (
	DefaultBaseURL = "https://api.deepgram.com"
	mockTranscript = "MOCK TRANSCRIPT: this is a placeholder transcription of the extracted audio."
)

// ListenResponse is the part of the prerecorded listen response we read.
type ListenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
	ErrCode string `json:"err_code,omitempty"`
	ErrMsg  string `json:"err_msg,omitempty"`
}

// Client transcribes a stored audio artifact and stores the text next to it.
// Mock skips the provider call and returns a fixed transcript.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
	Mock    bool
	Store   storage.Store
	Now     func() time.Time
	Log     *logrus.Entry
}

func (c *Client) Transcribe(ctx context.Context, req types.TranscriptionRequest) (types.Transcript, error) {
	if strings.TrimSpace(req.AudioURL) == "" {
		return types.Transcript{}, stage.Validationf("audio URL is required")
	}
	if c.Store == nil {
		return types.Transcript{}, stage.Validationf("transcription: no store configured")
	}
	log := c.logEntry().WithField("audio_url", req.AudioURL)
	log.Info("starting audio transcription")

	audio, err := c.Store.Get(ctx, req.AudioURL)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("failed to download audio: %w", err)
	}
	log.WithField("size", len(audio)).Debug("audio file downloaded")
	if len(audio) == 0 {
		return types.Transcript{}, stage.Validationf("audio buffer is empty or invalid")
	}

	text, err := c.transcribe(ctx, audio)
	if err != nil {
		return types.Transcript{}, err
	}
	if text == "" {
		log.Warn("provider returned an empty transcript")
	}

	loc, err := storage.Upload(ctx, c.Store, req.ProcessFolder, storage.KindTranscription, []byte(text), c.now())
	if err != nil {
		return types.Transcript{}, err
	}
	log.WithField("location", loc).Info("transcription uploaded")
	return types.Transcript{Location: loc, Text: text}, nil
}

func (c *Client) transcribe(ctx context.Context, audio []byte) (string, error) {
	if c.Mock {
		return mockTranscript, nil
	}
	if c.APIKey == "" {
		return "", stage.Validationf("transcription API key not set")
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/v1/listen")
	if err != nil {
		return "", stage.Validation(fmt.Errorf("transcription URL: %w", err))
	}
	q := u.Query()
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+c.APIKey)
	req.Header.Set("Content-Type", "audio/mpeg")

	var resp ListenResponse
	if err := c.doJSON(req, &resp); err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return resp.Results.Channels[0].Alternatives[0].Transcript, nil
}

func (c *Client) doJSON(req *http.Request, target any) error {
	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return stage.Validation(fmt.Errorf("provider rejected credentials: %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return fmt.Errorf("provider error: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	case len(body) == 0:
		return fmt.Errorf("empty body")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("json decode error: %v body=%s", err, string(body))
	}
	return nil
}

func (c *Client) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Client) logEntry() *logrus.Entry {
	if c.Log != nil {
		return c.Log.WithField("module", "transcription")
	}
	return logger.Discard().WithField("module", "transcription")
}
