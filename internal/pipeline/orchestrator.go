package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"video-pipeline-go/internal/logger"
	"video-pipeline-go/internal/stage"
	"video-pipeline-go/internal/storage"
	"video-pipeline-go/internal/types"
)

// StageConfig is the deadline and retry policy of one stage.
type StageConfig struct {
	Timeout time.Duration
	Retry   stage.RetryPolicy
}

// DefaultStageConfig allows ten minutes per attempt with the default retry policy.
func DefaultStageConfig() StageConfig {
	return StageConfig{Timeout: 10 * time.Minute, Retry: stage.DefaultRetryPolicy()}
}

// Options tunes an Orchestrator. The zero value is usable.
type Options struct {
	// Namespace prefixes every working folder.
	Namespace string
	Defaults  StageConfig
	// Stages overrides Defaults per stage id.
	Stages map[string]StageConfig
	// RequireVoice makes a failed voice extraction fatal.
	RequireVoice bool
	// FanOutLimit caps concurrent stages in a fan-out; zero is unbounded.
	FanOutLimit int
	Now         func() time.Time
	// Runner overrides the default stage runner.
	Runner *stage.Runner
}

// Orchestrator drives the fixed stage graph
// (audio || voice) -> transcription -> (chat || email).
type Orchestrator struct {
	c      Collaborators
	opts   Options
	runner *stage.Runner
	log    *logger.Logger

	// mu guards lastFolder, the timestamp of the most recent working folder.
	mu         sync.Mutex
	lastFolder time.Time
}

// New validates the collaborators and fills unset options with defaults.
func New(c Collaborators, opts Options, log *logger.Logger) (*Orchestrator, error) {
	switch {
	case c.Audio == nil:
		return nil, errors.New("pipeline: audio extractor is required")
	case c.Voice == nil:
		return nil, errors.New("pipeline: voice extractor is required")
	case c.Transcriber == nil:
		return nil, errors.New("pipeline: transcriber is required")
	case c.Chat == nil:
		return nil, errors.New("pipeline: chat notifier is required")
	case c.Email == nil:
		return nil, errors.New("pipeline: email notifier is required")
	}
	if log == nil {
		log = logger.Discard()
	}
	if opts.Defaults == (StageConfig{}) {
		opts.Defaults = DefaultStageConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	runner := opts.Runner
	if runner == nil {
		runner = stage.NewRunner(log.Entry)
	}
	return &Orchestrator{c: c, opts: opts, runner: runner, log: log}, nil
}

func (o *Orchestrator) stageConfig(id string) StageConfig {
	if cfg, ok := o.opts.Stages[id]; ok {
		return cfg
	}
	return o.opts.Defaults
}

func newSpec[In, Out any](cfg StageConfig, id string, invoke func(context.Context, In) (Out, error)) stage.Spec[In, Out] {
	return stage.Spec[In, Out]{ID: id, Invoke: invoke, Timeout: cfg.Timeout, Retry: cfg.Retry}
}

// run is one execution of the graph. It is discarded once its Result is built.
type run struct {
	id      string
	folder  string
	input   Input
	started time.Time
	phase   Phase
	state   *State
	diag    []Diagnostic
	log     *logrus.Entry
	runner  *stage.Runner
	fanout  *stage.FanOut
	now     func() time.Time
}

// Run executes one pipeline run under a fresh run id.
func (o *Orchestrator) Run(ctx context.Context, in Input) Result {
	return o.RunWithID(ctx, uuid.New().String(), in)
}

// RunWithID executes one pipeline run. It never panics and always returns a
// well-formed Result.
func (o *Orchestrator) RunWithID(ctx context.Context, id string, in Input) (res Result) {
	r := o.start(id, in)
	defer func() {
		if p := recover(); p != nil {
			res = r.fail("", fmt.Errorf("pipeline panicked: %v", p))
		}
	}()

	if err := r.input.Validate(); err != nil {
		return r.fail("", err)
	}

	// Extracting: audio is mandatory, voice is reported.
	r.enter(PhaseExtracting)
	extracted, err := r.fanout.RunAll(ctx,
		stage.Bind(newSpec(o.stageConfig(StageAudio), StageAudio, o.c.Audio.ExtractAudio),
			types.ExtractRequest{VideoURL: r.input.VideoURL, ProcessFolder: r.folder}),
		stage.Bind(newSpec(o.stageConfig(StageVoice), StageVoice, o.c.Voice.ExtractVoice),
			types.VoiceRequest{VideoURL: r.input.VideoURL, ProcessFolder: r.folder, VoiceID: r.input.VoiceID}),
	)
	if err != nil {
		return r.fail("", err)
	}
	r.state.Merge(extracted)

	audio, ok := stage.Get[types.AudioArtifact](extracted, StageAudio)
	switch {
	case !ok:
		return r.fail(StageAudio, stage.Aggregation(StageAudio, errors.New("audio extraction result is missing")))
	case !audio.OK():
		return r.fail(StageAudio, stage.Aggregation(StageAudio, audio.Err()))
	case len(audio.Output().Data) == 0:
		return r.fail(StageAudio, stage.Aggregation(StageAudio, errors.New("audio extraction failed or buffer is missing")))
	}

	if v, ok := stage.Get[types.VoiceArtifact](extracted, StageVoice); !ok || !v.OK() {
		verr := errors.New("voice extraction result is missing")
		if ok {
			verr = v.Err()
		}
		if o.opts.RequireVoice {
			return r.fail(StageVoice, stage.Aggregation(StageVoice, verr))
		}
		r.diagnose(StageVoice, verr)
	}

	// Transcribing
	r.enter(PhaseTranscribing)
	tr := stage.Run(ctx, r.runner,
		newSpec(o.stageConfig(StageTranscription), StageTranscription, o.c.Transcriber.Transcribe),
		types.TranscriptionRequest{AudioURL: audio.Output().Location, VideoURL: r.input.VideoURL, ProcessFolder: r.folder},
	)
	r.state.Record(StageTranscription, tr.Erase())
	if !tr.OK() {
		return r.fail(StageTranscription, tr.Err())
	}

	// Notifying: failures are reported, never fatal.
	r.enter(PhaseNotifying)
	notice := r.state.Notice(r.input.VideoURL, r.folder)
	notified, err := r.fanout.RunAll(ctx,
		stage.Bind(newSpec(o.stageConfig(StageSlack), StageSlack, o.c.Chat.NotifyChat),
			types.ChatRequest{WebhookURL: r.input.SlackWebhookURL, Notice: notice}),
		stage.Bind(newSpec(o.stageConfig(StageEmail), StageEmail, o.c.Email.NotifyEmail),
			types.EmailRequest{Recipient: r.input.Email, Notice: notice}),
	)
	if err != nil {
		r.diagnose("", err)
	}
	r.state.Merge(notified)

	return r.done()
}

// folderTime returns the timestamp for a new working folder. Issued values
// strictly increase at millisecond precision, so runs started in the same
// millisecond never share a folder.
func (o *Orchestrator) folderTime(now time.Time) time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	at := now.Truncate(time.Millisecond)
	if !at.After(o.lastFolder) {
		at = o.lastFolder.Add(time.Millisecond)
	}
	o.lastFolder = at
	return at
}

func (o *Orchestrator) start(id string, in Input) *run {
	now := o.opts.Now()
	folder := storage.ProcessFolder(o.opts.Namespace, o.folderTime(now))
	log := o.log.WithRun(id, folder)
	runner := o.runner.WithLogger(log)
	r := &run{
		id:      id,
		folder:  folder,
		input:   in.normalized(),
		started: now,
		phase:   PhaseStart,
		state:   newState(),
		log:     log,
		runner:  runner,
		fanout:  stage.NewFanOut(runner, o.opts.FanOutLimit),
		now:     o.opts.Now,
	}
	log.WithField("video_url", r.input.VideoURL).Info("starting pipeline run")
	return r
}

func (r *run) enter(p Phase) {
	r.log.WithField("phase", p).WithField("from", r.phase).Info("pipeline phase")
	r.phase = p
}

func (r *run) diagnose(stageID string, err error) {
	d := Diagnostic{Stage: stageID, Kind: stage.KindOf(err), Message: err.Error()}
	r.diag = append(r.diag, d)
	r.log.WithFields(logrus.Fields{"stage": stageID, "kind": d.Kind, "error": d.Message}).Warn("non-fatal stage failure")
}

func (r *run) base() Result {
	return Result{
		Phase:         r.phase,
		RunID:         r.id,
		ProcessFolder: r.folder,
		Diagnostics:   r.diag,
		Stages:        r.state.statuses(),
		StartedAt:     r.started,
		FinishedAt:    r.now(),
	}
}

// fail moves the run to Failed. err's message is carried verbatim.
func (r *run) fail(stageID string, err error) Result {
	from := r.phase
	r.phase = PhaseFailed
	res := r.base()
	res.Success = false
	res.Error = err.Error()
	res.ErrorKind = stage.KindOf(err)
	res.FailedStage = stageID
	r.log.WithFields(logrus.Fields{
		"from":         from,
		"failed_stage": stageID,
		"kind":         res.ErrorKind,
		"error":        res.Error,
		"duration_ms":  res.FinishedAt.Sub(r.started).Milliseconds(),
	}).Error("pipeline run failed")
	return res
}

func (r *run) done() Result {
	r.phase = PhaseDone
	notifications := make(map[string]Delivery, 2)
	for _, id := range []string{StageSlack, StageEmail} {
		nr, ok := r.state.Result(id)
		if !ok {
			continue
		}
		res := stage.Cast[string](nr)
		if res.OK() {
			notifications[id] = Delivery{OK: true, AckID: res.Output()}
			r.log.WithFields(logrus.Fields{"stage": id, "ack_id": res.Output()}).Info("notification delivered")
			continue
		}
		notifications[id] = Delivery{Error: res.Message()}
		r.diagnose(id, res.Err())
	}

	res := r.base()
	res.Success = true
	res.Notifications = notifications
	if a, ok := Output[types.AudioArtifact](r.state, StageAudio); ok {
		res.AudioPath = a.Location
	}
	if t, ok := Output[types.Transcript](r.state, StageTranscription); ok {
		res.Transcription = t.Text
		res.TranscriptionPath = t.Location
	}
	if v, ok := Output[types.VoiceArtifact](r.state, StageVoice); ok {
		res.VoiceData = v.Data
		res.VoiceDataPath = v.Location
	}
	r.log.WithFields(logrus.Fields{
		"transcription_path": res.TranscriptionPath,
		"diagnostics":        len(res.Diagnostics),
		"duration_ms":        res.FinishedAt.Sub(r.started).Milliseconds(),
	}).Info("pipeline run done")
	return res
}
