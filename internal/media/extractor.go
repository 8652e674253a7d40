package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"video-pipeline-go/internal/logger"
	"video-pipeline-go/internal/stage"
	"video-pipeline-go/internal/storage"
	"video-pipeline-go/internal/types"
)

const userAgent = "video-pipeline-go/1.0"

// Transcoder turns a local video file into an mp3 at dest.
type Transcoder interface {
	ExtractAudio(ctx context.Context, source, dest string) error
}

// FFmpeg shells out to the ffmpeg binary.
type FFmpeg struct {
	Binary string
}

func (f FFmpeg) ExtractAudio(ctx context.Context, source, dest string) error {
	if source == "" {
		return stage.Validationf("video path is required")
	}
	if dest == "" {
		return stage.Validationf("output path is required")
	}
	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-acodec", "libmp3lame",
		"-ab", "128k",
		"-ar", "44100",
		"-map", "0:a:0",
		"-f", "mp3",
		"-y",
		dest,
	}
	cmd := exec.CommandContext(ctx, bin, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg error: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Extractor downloads a video, extracts its first audio stream as mp3 and
// stores it as the run's audio artifact.
type Extractor struct {
	HTTP    *http.Client
	Codec   Transcoder
	Store   storage.Store
	TempDir string
	Now     func() time.Time
	Log     *logrus.Entry
}

func (e *Extractor) ExtractAudio(ctx context.Context, req types.ExtractRequest) (types.AudioArtifact, error) {
	if strings.TrimSpace(req.VideoURL) == "" {
		return types.AudioArtifact{}, stage.Validationf("video URL is required")
	}
	log := e.log().WithField("video_url", req.VideoURL)
	log.Info("starting audio extraction")

	tempDir, err := os.MkdirTemp(e.TempDir, "audio-extraction-")
	if err != nil {
		return types.AudioArtifact{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	videoPath := filepath.Join(tempDir, "video.mp4")
	audioPath := filepath.Join(tempDir, "audio.mp3")

	log.Debug("downloading video")
	if err := e.download(ctx, req.VideoURL, videoPath); err != nil {
		return types.AudioArtifact{}, err
	}

	log.Debug("extracting audio from video")
	if err := e.codec().ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return types.AudioArtifact{}, err
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return types.AudioArtifact{}, fmt.Errorf("read extracted audio: %w", err)
	}
	if len(audio) == 0 {
		return types.AudioArtifact{}, fmt.Errorf("extracted audio is empty")
	}

	loc, err := storage.Upload(ctx, e.Store, req.ProcessFolder, storage.KindAudio, audio, e.now())
	if err != nil {
		return types.AudioArtifact{}, err
	}
	log.WithField("location", loc).Info("audio file uploaded")
	return types.AudioArtifact{Location: loc, Data: audio}, nil
}

func (e *Extractor) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return stage.Validation(fmt.Errorf("invalid video URL: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := e.client().Do(req)
	if err != nil {
		return fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("download video: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create video file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("download video: %w", err)
	}
	return f.Close()
}

func (e *Extractor) client() *http.Client {
	if e.HTTP != nil {
		return e.HTTP
	}
	return http.DefaultClient
}

func (e *Extractor) codec() Transcoder {
	if e.Codec != nil {
		return e.Codec
	}
	return FFmpeg{}
}

func (e *Extractor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Extractor) log() *logrus.Entry {
	if e.Log != nil {
		return e.Log.WithField("module", "media")
	}
	return logger.Discard().WithField("module", "media")
}
