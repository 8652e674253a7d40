package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"video-pipeline-go/internal/stage"
	"video-pipeline-go/internal/types"
)

const userAgent = "video-pipeline-go/1.0"

type textObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type block struct {
	Type   string       `json:"type"`
	Text   *textObject  `json:"text,omitempty"`
	Fields []textObject `json:"fields,omitempty"`
}

type slackMessage struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks"`
}

// Slack posts a block-kit summary to an incoming webhook.
type Slack struct {
	HTTP *http.Client
}

// NotifyChat returns the message timestamp when the webhook reports one,
// otherwise a generated acknowledgment id.
func (s *Slack) NotifyChat(ctx context.Context, req types.ChatRequest) (string, error) {
	if strings.TrimSpace(req.WebhookURL) == "" {
		return "", stage.Validationf("slack webhook URL is required")
	}
	payload, err := json.Marshal(slackBlocks(req.Notice))
	if err != nil {
		return "", stage.Validation(fmt.Errorf("encode slack message: %w", err))
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return "", stage.Validation(fmt.Errorf("build slack request: %w", err))
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("User-Agent", userAgent)

	resp, err := client(s.HTTP).Do(hreq)
	if err != nil {
		return "", fmt.Errorf("send slack notification: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("slack API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ack struct {
		TS string `json:"ts"`
	}
	if json.Unmarshal(body, &ack) == nil && ack.TS != "" {
		return ack.TS, nil
	}
	return uuid.New().String(), nil
}

func slackBlocks(n types.Notice) slackMessage {
	md := func(s string) textObject { return textObject{Type: "mrkdwn", Text: s} }
	return slackMessage{
		Text: "New Video Processing Complete!",
		Blocks: []block{
			{Type: "header", Text: &textObject{Type: "plain_text", Text: "🎥 New Video Processing Complete!", Emoji: true}},
			{Type: "section", Text: &textObject{Type: "mrkdwn", Text: fmt.Sprintf("Process folder: `%s`", n.ProcessFolder)}},
			{Type: "section", Fields: []textObject{
				md(fmt.Sprintf("*Video URL:*\n%s", link(n.VideoURL, "Click to view"))),
				md(fmt.Sprintf("*Audio URL:*\n%s", link(n.AudioURL, "Click to download"))),
			}},
			{Type: "section", Fields: []textObject{
				md(fmt.Sprintf("*Transcription:*\n%s", link(n.TranscriptionURL, "Click to view"))),
				md(fmt.Sprintf("*Voice Data:*\n%s", link(n.VoiceURL, "Click to view"))),
			}},
		},
	}
}

// link renders a mrkdwn link, or a placeholder for an artifact that was not produced.
func link(url, label string) string {
	if url == "" {
		return "_not available_"
	}
	return fmt.Sprintf("<%s|%s>", url, label)
}

func client(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}
