// Package dashboard serves the read-only web view over pipeline artifacts and
// the remote control that dispatches the pipeline workflow on GitHub Actions.
package dashboard

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/github"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/etl"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
)

//go:embed templates/*.html
var templateFS embed.FS

// maxRemoteRows caps the fetched prediction table shown after a remote run.
const maxRemoteRows = 200

// RemoteControl dispatches the pipeline workflow and reports its outcome.
type RemoteControl interface {
	TriggerWorkflow(ctx context.Context) error
	WaitForCompletion(ctx context.Context, dispatchedAt time.Time, onStatus func(github.Run)) (github.Run, error)
	FetchLatestPredictions(ctx context.Context) ([]domain.PredictionRow, error)
}

// Dirs locates the artifacts the dashboard reads.
type Dirs struct {
	Data        string
	Predictions string
	Reports     string
}

// DirsFromConfig returns the artifact directories of cfg.
func DirsFromConfig(cfg *config.Config) Dirs {
	return Dirs{
		Data:        cfg.DataDir(),
		Predictions: cfg.PredictionsDir(),
		Reports:     cfg.ReportsDir(),
	}
}

// Dashboard renders pipeline artifacts. It holds no state between requests.
type Dashboard struct {
	dirs    Dirs
	remote  RemoteControl
	metrics *observability.Metrics
	logger  *slog.Logger
	tmpl    *template.Template
}

// New parses the page templates. remote may be nil, in which case the run
// control reports that it is not configured.
func New(dirs Dirs, remote RemoteControl, metrics *observability.Metrics, logger *slog.Logger) (*Dashboard, error) {
	tmpl, err := template.New("dashboard").Funcs(template.FuncMap{
		"num":  formatNum,
		"date": formatDate,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Dashboard{
		dirs:    dirs,
		remote:  remote,
		metrics: metrics,
		logger:  logger,
		tmpl:    tmpl,
	}, nil
}

// Handler returns the dashboard routes.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", d.handleIndex)
	mux.HandleFunc("GET /predictions/latest.csv", d.handleDownload)
	mux.HandleFunc("POST /control/run", d.handleRun)
	return mux
}

// CheckReadiness reports whether the artifact data directory is reachable.
func (d *Dashboard) CheckReadiness(_ context.Context) error {
	if _, err := os.Stat(d.dirs.Data); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	return nil
}

func (d *Dashboard) processedPath() string {
	return filepath.Join(d.dirs.Data, etl.ProcessedFile)
}

func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	view := d.buildIndex(r.URL.Query())
	d.render(w, "index.html", view)
}

func (d *Dashboard) handleDownload(w http.ResponseWriter, r *http.Request) {
	path, err := latestPredictionFile(d.dirs.Predictions)
	if err != nil {
		d.logger.Error("list prediction files", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if path == "" {
		http.Error(w, "no prediction file found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

type runView struct {
	GeneratedAt string
	Triggered   bool
	Statuses    []string
	Run         *github.Run
	Warning     string
	Error       string
	Predictions []domain.PredictionRow
}

// Remote trigger outcomes recorded in metrics.
const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeTimeout  = "timeout"
	outcomeError    = "error"
	outcomeDisabled = "disabled"
)

// handleRun dispatches the workflow and blocks until the run completes or the
// poll times out. No retry is attempted.
func (d *Dashboard) handleRun(w http.ResponseWriter, r *http.Request) {
	view, outcome := d.runRemote(r.Context())
	d.metrics.RemoteTriggers.WithLabelValues(outcome).Inc()
	d.logger.Info("remote pipeline run", "outcome", outcome)
	d.render(w, "run.html", view)
}

func (d *Dashboard) runRemote(ctx context.Context) (runView, string) {
	view := runView{GeneratedAt: now()}
	if d.remote == nil {
		view.Error = "Remote control is not configured. Set GITHUB_TOKEN, GITHUB_OWNER and GITHUB_REPO."
		return view, outcomeDisabled
	}

	dispatchedAt := time.Now()
	if err := d.remote.TriggerWorkflow(ctx); err != nil {
		view.Error = "Trigger failed: " + err.Error()
		return view, outcomeError
	}
	view.Triggered = true

	run, err := d.remote.WaitForCompletion(ctx, dispatchedAt, func(run github.Run) {
		conclusion := run.Conclusion
		if conclusion == "" {
			conclusion = "none"
		}
		view.Statuses = append(view.Statuses,
			fmt.Sprintf("Workflow run %d status=%s conclusion=%s", run.ID, run.Status, conclusion))
	})
	switch {
	case errors.Is(err, github.ErrPollTimeout):
		view.Warning = "No workflow run found or timed out."
		return view, outcomeTimeout
	case err != nil:
		view.Error = "Polling workflow runs failed: " + err.Error()
		return view, outcomeError
	}
	view.Run = &run

	if !run.Succeeded() {
		view.Error = "Pipeline run failed. Check Actions log: " + run.HTMLURL
		return view, outcomeFailure
	}

	rows, err := d.remote.FetchLatestPredictions(ctx)
	if err != nil {
		view.Error = err.Error()
		return view, outcomeError
	}
	if len(rows) > maxRemoteRows {
		rows = rows[:maxRemoteRows]
	}
	view.Predictions = rows
	return view, outcomeSuccess
}

// render executes into a buffer so a template error can still produce a 500.
func (d *Dashboard) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := d.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		d.logger.Error("render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		d.logger.Warn("write response", "error", err)
	}
}

func now() string {
	return domain.Clock().Now().Format(domain.TimestampLayout)
}
