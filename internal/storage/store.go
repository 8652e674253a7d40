package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind is the artifact family; it decides the sub-folder, file prefix and extension.
type Kind string

const (
	KindAudio         Kind = "audio"
	KindTranscription Kind = "transcription"
	KindVoice         Kind = "voice"
)

// Ext is the file extension for the kind.
func (k Kind) Ext() string {
	switch k {
	case KindAudio:
		return "mp3"
	case KindTranscription:
		return "txt"
	case KindVoice:
		return "json"
	default:
		return "bin"
	}
}

func (k Kind) ContentType() string {
	switch k {
	case KindAudio:
		return "audio/mpeg"
	case KindTranscription:
		return "text/plain"
	case KindVoice:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// cacheControl is applied by backends that support it; artifacts never change once written.
const cacheControl = "max-age=31536000"

// Store persists artifacts. Put returns the location later passed to Get.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Get(ctx context.Context, location string) ([]byte, error)
}

// ProcessFolder is the per-run working folder:
// <namespace>/process_<ISO-8601 UTC millis with ':' and '.' replaced by '-'>.
func ProcessFolder(namespace string, at time.Time) string {
	ts := at.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	namespace = strings.Trim(namespace, "/")
	if namespace == "" {
		return "process_" + ts
	}
	return namespace + "/process_" + ts
}

// Key is <folder>/<kind>/<kind>_<unix millis>.<ext>.
func Key(folder string, kind Kind, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s_%d.%s", strings.TrimRight(folder, "/"), kind, kind, at.UnixMilli(), kind.Ext())
}

// Upload stores body as an artifact of kind under folder and returns its location.
func Upload(ctx context.Context, s Store, folder string, kind Kind, body []byte, now time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("upload %s: no store configured", kind)
	}
	key := Key(folder, kind, now)
	loc, err := s.Put(ctx, key, body, kind.ContentType())
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", kind, err)
	}
	return loc, nil
}

// keyFromLocation strips base from location, rejecting locations from elsewhere.
func keyFromLocation(base, location string) (string, error) {
	if !strings.HasPrefix(location, base) {
		return "", fmt.Errorf("location %q is outside %q", location, base)
	}
	key := strings.TrimPrefix(location, base)
	if key == "" {
		return "", fmt.Errorf("location %q has no object key", location)
	}
	return key, nil
}
