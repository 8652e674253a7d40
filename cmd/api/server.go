package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"video-pipeline-go/internal/dataset"
	"video-pipeline-go/internal/logger"
	"video-pipeline-go/internal/pipeline"
	"video-pipeline-go/internal/runs"
	"video-pipeline-go/internal/stage"
)

type pipelineRunner interface {
	Run(ctx context.Context, in pipeline.Input) pipeline.Result
	RunWithID(ctx context.Context, id string, in pipeline.Input) pipeline.Result
}

type server struct {
	pipe        pipelineRunner
	runs        *runs.Registry
	log         *logger.Logger
	runTimeout  time.Duration
	datasetPath string
	reportPath  string
	batchLimit  int

	// async tracks background runs so shutdown can wait for them.
	async sync.WaitGroup
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("POST /process", s.process)
	mux.HandleFunc("GET /runs/{id}", s.runStatus)
	mux.HandleFunc("POST /batch", s.batch)
	return mux
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	s.log.WithRequest(r).Debug("health check")
	fmt.Fprint(w, "ok")
}

// readInput accepts a JSON body or, when the body is empty, query parameters.
func readInput(w http.ResponseWriter, r *http.Request) (pipeline.Input, error) {
	var in pipeline.Input
	if r.ContentLength != 0 && r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		if err := dec.Decode(&in); err != nil {
			return in, fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	q := r.URL.Query()
	if in.VideoURL == "" {
		in.VideoURL = q.Get("videoUrl")
	}
	if in.Email == "" {
		in.Email = q.Get("email")
	}
	if in.SlackWebhookURL == "" {
		in.SlackWebhookURL = q.Get("slackWebhookUrl")
	}
	if in.VoiceID == "" {
		in.VoiceID = q.Get("voiceId")
	}
	return in, nil
}

func (s *server) process(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "process")

	in, err := readInput(w, r)
	if err != nil {
		reqLog.WithError(err).Warn("bad process request")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()}, reqLog)
		return
	}
	id := uuid.New().String()
	reqLog = reqLog.WithFields(logrus.Fields{"run_id": id, "video_url": in.VideoURL})

	if _, err := s.runs.Start(id, in); err != nil {
		reqLog.WithError(err).Warn("run rejected")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()}, reqLog)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		s.async.Add(1)
		go func() {
			defer s.async.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
			defer cancel()
			s.runs.Finish(id, s.pipe.RunWithID(ctx, id, in))
		}()
		reqLog.Info("run accepted")
		writeJSON(w, http.StatusAccepted, map[string]string{
			"runId":     id,
			"status":    string(runs.StatusRunning),
			"statusUrl": "/runs/" + id,
		}, reqLog)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()
	start := time.Now()
	res := s.pipe.RunWithID(ctx, id, in)
	s.runs.Finish(id, res)
	reqLog.WithFields(logrus.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
		"success":     res.Success,
	}).Info("pipeline finished")
	writeJSON(w, statusFor(res), res, reqLog)
}

func statusFor(res pipeline.Result) int {
	switch {
	case res.Success:
		return http.StatusOK
	case res.ErrorKind == stage.KindValidation && res.FailedStage == "":
		return http.StatusBadRequest
	case res.ErrorKind == stage.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *server) runStatus(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "runs")
	rec, ok := s.runs.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"}, reqLog)
		return
	}
	writeJSON(w, http.StatusOK, rec, reqLog)
}

// batch runs the first `limit` rows of the configured dataset (all rows when
// limit is absent) and optionally writes an xlsx report.
func (s *server) batch(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "batch").WithField("dataset_path", s.datasetPath)

	rows, err := dataset.Load(s.datasetPath)
	if err != nil {
		reqLog.WithError(err).Error("dataset load error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "dataset load error: " + err.Error()}, reqLog)
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"}, reqLog)
			return
		}
		if n < len(rows) {
			rows = rows[:n]
		}
	}
	reqLog = reqLog.WithField("rows", len(rows))
	reqLog.Info("batch started")

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout*time.Duration(max(1, len(rows))))
	defer cancel()
	results := dataset.Process(ctx, s.pipe, rows, s.batchLimit)
	summary := dataset.Summarize(results)

	resp := struct {
		Summary dataset.Summary   `json:"summary"`
		Results []pipeline.Result `json:"results"`
		Report  string            `json:"report,omitempty"`
	}{Summary: summary, Results: results}

	if s.reportPath != "" {
		if err := dataset.WriteReport(s.reportPath, rows, results); err != nil {
			reqLog.WithError(err).Error("report write failed")
		} else {
			resp.Report = s.reportPath
		}
	}
	reqLog.WithFields(logrus.Fields{"succeeded": summary.Succeeded, "failed": summary.Failed}).Info("batch finished")
	writeJSON(w, http.StatusOK, resp, reqLog)
}

// wait blocks until background runs finish or ctx is done.
func (s *server) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.async.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("background runs still in flight")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, log *logrus.Entry) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.WithError(err).Error("failed to write response")
	}
}
