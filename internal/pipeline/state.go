package pipeline

import (
	"video-pipeline-go/internal/stage"
	"video-pipeline-go/internal/types"
)

// State accumulates stage results for a single run. Only the orchestrator
// goroutine driving that run touches it; stages return values instead.
type State struct {
	results stage.Results
}

func newState() *State {
	return &State{results: make(stage.Results)}
}

// Merge records every result of a fan-out.
func (s *State) Merge(rs stage.Results) {
	for id, r := range rs {
		s.results[id] = r
	}
}

func (s *State) Record(id string, r stage.Result[any]) {
	s.results[id] = r
}

func (s *State) Result(id string) (stage.Result[any], bool) {
	r, ok := s.results[id]
	return r, ok
}

// Output returns the output of id when that stage succeeded.
func Output[T any](s *State, id string) (T, bool) {
	r, ok := stage.Get[T](s.results, id)
	if !ok || !r.OK() {
		var zero T
		return zero, false
	}
	return r.Output(), true
}

// Notice collects the artifact locations produced so far.
func (s *State) Notice(videoURL, folder string) types.Notice {
	n := types.Notice{VideoURL: videoURL, ProcessFolder: folder}
	if a, ok := Output[types.AudioArtifact](s, StageAudio); ok {
		n.AudioURL = a.Location
	}
	if t, ok := Output[types.Transcript](s, StageTranscription); ok {
		n.TranscriptionURL = t.Location
	}
	if v, ok := Output[types.VoiceArtifact](s, StageVoice); ok {
		n.VoiceURL = v.Location
	}
	return n
}

func (s *State) statuses() map[string]StageStatus {
	out := make(map[string]StageStatus, len(s.results))
	for id, r := range s.results {
		out[id] = StageStatus{OK: r.OK(), Attempts: r.Attempts(), Error: r.Message(), Kind: r.Kind()}
	}
	return out
}
