package voice

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

// Client fetches voice metadata from the voices API and stores it as JSON.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Store   storage.Store
	Now     func() time.Time
	Log     *logrus.Entry
}

func (c *Client) ExtractVoice(ctx context.Context, req types.VoiceRequest) (types.VoiceArtifact, error) {
	log := c.logEntry().WithField("voice_id", req.VoiceID)
	log.Info("starting voice data extraction")

	data, err := c.fetch(ctx, req.VoiceID)
	if err != nil {
		log.WithField("error", err.Error()).Warn("failed to fetch voice data")
		return types.VoiceArtifact{}, err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return types.VoiceArtifact{}, fmt.Errorf("voice API returned invalid JSON: %w", err)
	}
	loc, err := storage.Upload(ctx, c.Store, req.ProcessFolder, storage.KindVoice, pretty.Bytes(), c.now())
	if err != nil {
		return types.VoiceArtifact{}, err
	}
	log.WithField("location", loc).Info("voice data uploaded")
	return types.VoiceArtifact{Location: loc, Data: json.RawMessage(data)}, nil
}

func (c *Client) fetch(ctx context.Context, voiceID string) ([]byte, error) {
	if strings.TrimSpace(c.BaseURL) == "" {
		return nil, stage.Validationf("voices API URL is not configured")
	}
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return nil, stage.Validationf("voice ID is required")
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/" + url.PathEscape(voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, stage.Validation(fmt.Errorf("voice API request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice API request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voice API request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("voice API request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || string(body) == "null" {
		return nil, fmt.Errorf("no data received from voice API")
	}
	return body, nil
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
		return c.Log.WithField("module", "voice")
	}
	return logger.Discard().WithField("module", "voice")
}
