package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/mail"
	"strings"

	"video-pipeline-go/internal/stage"
	"video-pipeline-go/internal/types"
)

const (
	DefaultPostmarkURL = "https://api.postmarkapp.com"
	emailSubject       = "Video Processing Complete"
)

var htmlBody = template.Must(template.New("email").Parse(`<h1>🎥 Video Processing Complete</h1>
<p>Process folder: <code>{{.ProcessFolder}}</code></p>
<h2>Generated Files:</h2>
<ul>
  <li><strong>Video:</strong> <a href="{{.VideoURL}}">View Video</a></li>
  <li><strong>Audio:</strong> <a href="{{.AudioURL}}">Download Audio</a></li>
  <li><strong>Transcription:</strong> <a href="{{.TranscriptionURL}}">View Transcription</a></li>
  {{if .VoiceURL}}<li><strong>Voice Data:</strong> <a href="{{.VoiceURL}}">View Voice Data</a></li>{{else}}<li><strong>Voice Data:</strong> not available</li>{{end}}
</ul>
`))

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	HtmlBody      string `json:"HtmlBody"`
	TextBody      string `json:"TextBody"`
	MessageStream string `json:"MessageStream"`
}

type postmarkResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
	MessageID string `json:"MessageID"`
}

// Postmark sends the completion email through the Postmark HTTP API.
type Postmark struct {
	HTTP    *http.Client
	BaseURL string
	Token   string
	From    string
}

func (p *Postmark) NotifyEmail(ctx context.Context, req types.EmailRequest) (string, error) {
	if strings.TrimSpace(req.Recipient) == "" {
		return "", stage.Validationf("recipient email is required")
	}
	if _, err := mail.ParseAddress(req.Recipient); err != nil {
		return "", stage.Validation(fmt.Errorf("invalid recipient email: %w", err))
	}
	if p.Token == "" || p.From == "" {
		return "", stage.Validationf("postmark token and sender are required")
	}

	var html bytes.Buffer
	if err := htmlBody.Execute(&html, req.Notice); err != nil {
		return "", stage.Validation(fmt.Errorf("render email: %w", err))
	}
	payload, err := json.Marshal(postmarkEmail{
		From:          p.From,
		To:            req.Recipient,
		Subject:       emailSubject,
		HtmlBody:      html.String(),
		TextBody:      textBody(req.Notice),
		MessageStream: "outbound",
	})
	if err != nil {
		return "", stage.Validation(fmt.Errorf("encode email: %w", err))
	}

	base := p.BaseURL
	if base == "" {
		base = DefaultPostmarkURL
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/email", bytes.NewReader(payload))
	if err != nil {
		return "", stage.Validation(fmt.Errorf("build postmark request: %w", err))
	}
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("X-Postmark-Server-Token", p.Token)
	hreq.Header.Set("User-Agent", userAgent)

	resp, err := client(p.HTTP).Do(hreq)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var out postmarkResponse
	_ = json.Unmarshal(body, &out)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusUnprocessableEntity:
		// bad token or rejected message: resending will not help
		return "", stage.Validation(fmt.Errorf("postmark rejected email: %d %s", out.ErrorCode, out.Message))
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("postmark returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	case out.MessageID == "":
		return "", fmt.Errorf("postmark response has no MessageID")
	}
	return out.MessageID, nil
}

func textBody(n types.Notice) string {
	voice := n.VoiceURL
	if voice == "" {
		voice = "not available"
	}
	var b strings.Builder
	b.WriteString("Video Processing Complete\n\n")
	fmt.Fprintf(&b, "Process folder: %s\n\n", n.ProcessFolder)
	b.WriteString("Generated Files:\n")
	fmt.Fprintf(&b, "- Video: %s\n", n.VideoURL)
	fmt.Fprintf(&b, "- Audio: %s\n", n.AudioURL)
	fmt.Fprintf(&b, "- Transcription: %s\n", n.TranscriptionURL)
	fmt.Fprintf(&b, "- Voice Data: %s\n", voice)
	return b.String()
}
