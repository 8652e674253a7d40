package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"video-pipeline-go/internal/stage"
	"video-pipeline-go/internal/storage"
	"video-pipeline-go/internal/types"
)

func newClient(t *testing.T, baseURL string) (*Client, *storage.LocalStore) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return &Client{
		BaseURL: baseURL,
		Store:   store,
		Now:     func() time.Time { return time.UnixMilli(1710928805123) },
	}, store
}

func TestExtractVoice_StoresPrettyJSON(t *testing.T) {
	var gotPath, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAccept = r.URL.Path, r.Header.Get("Accept")
		w.Write([]byte(`{"id":"v1","name":"Narrator"}`))
	}))
	defer srv.Close()

	c, store := newClient(t, srv.URL+"/voices")
	art, err := c.ExtractVoice(context.Background(), types.VoiceRequest{VideoURL: "https://x/v.mp4", ProcessFolder: "ns/process_x", VoiceID: "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/voices/v1" || gotAccept != "application/json" {
		t.Fatalf("unexpected request %s (Accept %q)", gotPath, gotAccept)
	}
	if string(art.Data) != `{"id":"v1","name":"Narrator"}` {
		t.Fatalf("voice data should pass through unchanged, got %s", art.Data)
	}
	if !strings.HasSuffix(art.Location, "/ns/process_x/voice/voice_1710928805123.json") {
		t.Fatalf("unexpected location %q", art.Location)
	}
	stored, err := store.Get(context.Background(), art.Location)
	if err != nil {
		t.Fatal(err)
	}
	if string(stored) != "{\n  \"id\": \"v1\",\n  \"name\": \"Narrator\"\n}" {
		t.Fatalf("stored JSON not indented: %s", stored)
	}
}

func TestExtractVoice_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/empty":
			w.WriteHeader(http.StatusOK)
		case "/broken":
			w.Write([]byte("{not json"))
		default:
			http.Error(w, "upstream", http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	cases := []struct {
		name    string
		base    string
		voiceID string
		kind    stage.Kind
	}{
		{"no base url", "", "v1", stage.KindValidation},
		{"no voice id", srv.URL, " ", stage.KindValidation},
		{"empty body", srv.URL, "empty", stage.KindCollaborator},
		{"invalid json", srv.URL, "broken", stage.KindCollaborator},
		{"server error", srv.URL, "v1", stage.KindCollaborator},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newClient(t, tc.base)
			_, err := c.ExtractVoice(context.Background(), types.VoiceRequest{ProcessFolder: "f", VoiceID: tc.voiceID})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := stage.KindOf(err); got != tc.kind {
				t.Fatalf("kind = %q, want %q (%v)", got, tc.kind, err)
			}
		})
	}
}
