package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lacquerai/cortex/internal/dataset"
	"github.com/lacquerai/cortex/internal/engine"
	"github.com/lacquerai/cortex/internal/modeling"
	"github.com/lacquerai/cortex/internal/remediate"
	"github.com/lacquerai/cortex/internal/schema"
)

const (
	maxMemory   = 32 << 20
	previewRows = 10
)

var validate = validator.New()

// requestError marks a malformed request.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// uploadForm is the multipart form shared by diagnose, runs and heal.
type uploadForm struct {
	Target        string   `validate:"required"`
	Protected     []string `validate:"dive,required"`
	PositiveLabel string
	Strategy      string `validate:"omitempty,oneof=median knn"`
}

type upload struct {
	form uploadForm
	name string
	data *dataset.Dataset
}

// readUpload parses the multipart body. When allowDefaultTarget is set the
// last column is used as the target if none is given.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, allowDefaultTarget bool) (*upload, error) {
	if s.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, &requestError{fmt.Errorf("invalid multipart form: %w", err)}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, &requestError{fmt.Errorf("missing CSV upload in field %q: %w", "file", err)}
	}
	defer file.Close()

	d, err := dataset.ReadCSV(file)
	if err != nil {
		return nil, err
	}

	u := &upload{
		name: header.Filename,
		data: d,
		form: uploadForm{
			Target:        strings.TrimSpace(r.FormValue("target")),
			Protected:     splitList(r.MultipartForm.Value["protected"]),
			PositiveLabel: r.FormValue("positive_label"),
			Strategy:      strings.ToLower(strings.TrimSpace(r.FormValue("strategy"))),
		},
	}
	if u.form.Target == "" && allowDefaultTarget {
		columns := d.Columns()
		u.form.Target = columns[len(columns)-1]
	}
	if err := validate.Struct(u.form); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return u, nil
}

// splitList accepts repeated fields as well as comma separated values.
func splitList(values []string) []string {
	out := []string{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (u *upload) request() engine.Request {
	return engine.Request{
		Data:          u.data,
		Name:          u.name,
		Target:        u.form.Target,
		Protected:     u.form.Protected,
		PositiveLabel: u.form.PositiveLabel,
	}
}

// orchestratorFor applies the requested remediation strategy.
func (s *Server) orchestratorFor(u *upload) *engine.Orchestrator {
	if u.form.Strategy == "" {
		return s.orchestrator
	}
	return s.orchestrator.With(engine.WithRemediator(remediate.New(remediate.WithStrategy(remediate.Strategy(u.form.Strategy)))))
}

// diagnose runs the pipeline synchronously and returns the report.
func (s *Server) diagnose(w http.ResponseWriter, r *http.Request) {
	u, err := s.readUpload(w, r, false)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout)
	defer cancel()

	runID := engine.NewRunID()
	if _, ok := s.manager.StartRun(runID, u.name, u.form.Target, cancel); !ok {
		writeError(w, http.StatusServiceUnavailable, errors.New("server at capacity, try again later"))
		return
	}

	rep, err := engine.NewRunner(s.orchestratorFor(u), s.manager.Listener(runID)).RunWithID(ctx, runID, u.request())
	s.manager.FinishRun(runID, rep, err)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

// startRun accepts the same form as diagnose and runs it in the background.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	u, err := s.readUpload(w, r, false)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	// use background context as hanging off the request context
	// will cause the context to be cancelled when the request is finished.
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)

	runID := engine.NewRunID()
	status, ok := s.manager.StartRun(runID, u.name, u.form.Target, cancel)
	if !ok {
		cancel()
		writeError(w, http.StatusServiceUnavailable, errors.New("server at capacity, try again later"))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":     runID,
		"status":     StatusRunning,
		"started_at": status.StartTime,
	})

	go s.runAsync(ctx, cancel, runID, u)
}

func (s *Server) runAsync(ctx context.Context, cancel context.CancelFunc, runID string, u *upload) {
	defer cancel()

	rep, err := engine.NewRunner(s.orchestratorFor(u), s.manager.Listener(runID)).RunWithID(ctx, runID, u.request())
	s.manager.FinishRun(runID, rep, err)

	log.Info().
		Str("run_id", runID).
		Str("dataset", u.name).
		Err(err).
		Msg("Diagnostic run finished")
}

// getRun returns the status of a run, with its report once finished.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]

	status, exists := s.manager.Snapshot(runID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("run '%s' not found", runID))
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// streamRun replays a run's progress over a WebSocket and then forwards new
// events until the run finishes or the client disconnects.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]

	status, exists := s.manager.GetRun(runID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("run '%s' not found", runID))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	status.clientsMu.Lock()
	snapshot, _ := s.manager.Snapshot(runID)
	for _, event := range snapshot.Progress {
		eventJSON, _ := json.Marshal(event)
		conn.WriteMessage(websocket.TextMessage, eventJSON)
	}
	if snapshot.Status != StatusRunning {
		status.clientsMu.Unlock()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, snapshot.Status))
		return
	}
	status.clients[conn] = true
	status.clientsMu.Unlock()

	// Keep connection alive until the run is done or client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	status.clientsMu.Lock()
	delete(status.clients, conn)
	status.clientsMu.Unlock()
}

// healResponse is the body of POST /api/v1/heal.
type healResponse struct {
	Stats       healStats          `json:"stats"`
	Analysis    healAnalysis       `json:"analysis"`
	Remediation *remediate.Summary `json:"remediation"`
	Preview     []map[string]any   `json:"preview_data"`
	ModelError  string             `json:"model_error,omitempty"`
	Schema      *schema.Schema     `json:"schema"`
}

type healStats struct {
	Rows          int      `json:"rows"`
	RowsAfter     int      `json:"rows_after"`
	MissingBefore int      `json:"missing_before"`
	MissingAfter  int      `json:"missing_after"`
	Accuracy      *float64 `json:"accuracy,omitempty"`
}

type healAnalysis struct {
	HealthData        map[string]int        `json:"health_data"`
	FeatureImportance []modeling.Importance `json:"feature_importance"`
}

// heal fills the gaps of the uploaded dataset and evaluates the result.
// The target defaults to the last column.
func (s *Server) heal(w http.ResponseWriter, r *http.Request) {
	u, err := s.readUpload(w, r, true)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout)
	defer cancel()

	res, err := s.orchestratorFor(u).Heal(ctx, u.data, u.form.Target)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := healResponse{
		Stats: healStats{
			Rows:          res.RowsBefore,
			RowsAfter:     res.Healed.Len(),
			MissingBefore: res.MissingBefore,
			MissingAfter:  res.MissingAfter,
		},
		Analysis: healAnalysis{
			HealthData:        res.MissingByColumn,
			FeatureImportance: []modeling.Importance{},
		},
		Remediation: res.Summary,
		Preview:     res.Healed.Head(previewRows).Records(),
		ModelError:  res.ModelError,
		Schema:      res.Schema,
	}
	if res.Model != nil {
		score := res.Model.MeanCVScore
		resp.Stats.Accuracy = &score
		resp.Analysis.FeatureImportance = res.Model.FeatureImportances
	}

	writeJSON(w, http.StatusOK, resp)
}

// healthCheck returns server health status
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"active_runs": s.manager.GetActiveRuns(),
		"timestamp":   time.Now(),
	})
}

// handleOptions handles CORS preflight requests
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	// CORS headers are already set by middleware
	w.WriteHeader(http.StatusOK)
}

// statusFor maps input errors to 400 and everything else to 500.
func statusFor(err error) int {
	var (
		malformed  *dataset.MalformedInputError
		target     *schema.InvalidTargetError
		validation validator.ValidationErrors
		request    *requestError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &malformed), errors.As(err, &target), errors.As(err, &validation), errors.As(err, &request):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
