package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"video-pipeline-go/internal/stage"
	"video-pipeline-go/internal/types"
)

var notice = types.Notice{
	VideoURL:         "https://x/v.mp4",
	AudioURL:         "https://b.s3.r.amazonaws.com/f/audio/audio_1.mp3",
	TranscriptionURL: "https://b.s3.r.amazonaws.com/f/transcription/transcription_1.txt",
	VoiceURL:         "https://b.s3.r.amazonaws.com/f/voice/voice_1.json",
	ProcessFolder:    "f",
}

func TestSlack_NotifyChat(t *testing.T) {
	var msg slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"ok":true,"ts":"1710928805.000100"}`))
	}))
	defer srv.Close()

	ack, err := (&Slack{}).NotifyChat(context.Background(), types.ChatRequest{WebhookURL: srv.URL, Notice: notice})
	if err != nil {
		t.Fatal(err)
	}
	if ack != "1710928805.000100" {
		t.Fatalf("unexpected ack %q", ack)
	}
	if len(msg.Blocks) != 4 || msg.Blocks[0].Type != "header" {
		t.Fatalf("unexpected blocks: %+v", msg.Blocks)
	}
	if got := msg.Blocks[3].Fields[1].Text; !strings.Contains(got, notice.VoiceURL) {
		t.Fatalf("voice link missing: %q", got)
	}
}

func TestSlack_PlainOKGetsGeneratedAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ack, err := (&Slack{}).NotifyChat(context.Background(), types.ChatRequest{WebhookURL: srv.URL, Notice: notice})
	if err != nil {
		t.Fatal(err)
	}
	if ack == "" {
		t.Fatal("expected generated ack id")
	}
}

func TestSlack_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := (&Slack{}).NotifyChat(context.Background(), types.ChatRequest{Notice: notice})
	if stage.KindOf(err) != stage.KindValidation {
		t.Fatalf("missing webhook should be a validation error, got %v", err)
	}
	_, err = (&Slack{}).NotifyChat(context.Background(), types.ChatRequest{WebhookURL: srv.URL, Notice: notice})
	if err == nil || !strings.Contains(err.Error(), "status 403") {
		t.Fatalf("expected delivery error, got %v", err)
	}
}

func TestSlack_MissingVoiceRendersPlaceholder(t *testing.T) {
	n := notice
	n.VoiceURL = ""
	msg := slackBlocks(n)
	if got := msg.Blocks[3].Fields[1].Text; !strings.Contains(got, "not available") {
		t.Fatalf("expected placeholder, got %q", got)
	}
}

func TestPostmark_NotifyEmail(t *testing.T) {
	var sent postmarkEmail
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/email" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		token = r.Header.Get("X-Postmark-Server-Token")
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &sent)
		w.Write([]byte(`{"ErrorCode":0,"Message":"OK","MessageID":"msg-123"}`))
	}))
	defer srv.Close()

	p := &Postmark{BaseURL: srv.URL, Token: "tok", From: "noreply@example.com"}
	id, err := p.NotifyEmail(context.Background(), types.EmailRequest{Recipient: "a@b.com", Notice: notice})
	if err != nil {
		t.Fatal(err)
	}
	if id != "msg-123" || token != "tok" {
		t.Fatalf("unexpected id %q token %q", id, token)
	}
	if sent.Subject != "Video Processing Complete" || sent.To != "a@b.com" || sent.MessageStream != "outbound" {
		t.Fatalf("unexpected email %+v", sent)
	}
	for _, want := range []string{notice.AudioURL, notice.TranscriptionURL, notice.VoiceURL} {
		if !strings.Contains(sent.HtmlBody, want) || !strings.Contains(sent.TextBody, want) {
			t.Fatalf("bodies missing %s", want)
		}
	}
}

func TestPostmark_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-Postmark-Server-Token") {
		case "rejected":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"ErrorCode":300,"Message":"Invalid email request"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	cases := []struct {
		name      string
		recipient string
		token     string
		kind      stage.Kind
	}{
		{"no recipient", "", "tok", stage.KindValidation},
		{"bad recipient", "not-an-address", "tok", stage.KindValidation},
		{"no token", "a@b.com", "", stage.KindValidation},
		{"rejected", "a@b.com", "rejected", stage.KindValidation},
		{"server error", "a@b.com", "tok", stage.KindCollaborator},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &Postmark{BaseURL: srv.URL, Token: tc.token, From: "noreply@example.com"}
			_, err := p.NotifyEmail(context.Background(), types.EmailRequest{Recipient: tc.recipient, Notice: notice})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := stage.KindOf(err); got != tc.kind {
				t.Fatalf("kind = %q, want %q (%v)", got, tc.kind, err)
			}
		})
	}
}
