// Package github dispatches the pipeline workflow on GitHub Actions, polls
// its runs, and fetches the prediction file the workflow commits.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

var (
	// ErrTriggerFailed is returned when GitHub rejects the workflow dispatch.
	ErrTriggerFailed = errors.New("workflow dispatch failed")
	// ErrPollTimeout is returned when no matching run completes before the poll timeout.
	ErrPollTimeout = errors.New("timed out waiting for workflow run")
	// ErrRawFetch is returned when the published prediction file cannot be downloaded.
	ErrRawFetch = errors.New("could not fetch raw file")
)

// Runs created this long before the dispatch are still accepted, to absorb
// clock differences between us and GitHub.
const dispatchSkew = 10 * time.Second

// Run is the subset of a workflow run the dashboard shows.
type Run struct {
	ID         int64     `json:"id"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	HTMLURL    string    `json:"html_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// Completed reports whether the run has reached a terminal state.
func (r Run) Completed() bool { return r.Status == "completed" }

// Succeeded reports whether the run completed successfully.
func (r Run) Succeeded() bool { return r.Completed() && r.Conclusion == "success" }

// Settings configures the client.
type Settings struct {
	Token        string
	Owner        string
	Repo         string
	WorkflowFile string
	Branch       string
	APIBase      string
	RawBase      string
	RepoPath     string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// SettingsFromConfig extracts the GitHub settings from the service config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Token:        cfg.GitHubToken,
		Owner:        cfg.GitHubOwner,
		Repo:         cfg.GitHubRepo,
		WorkflowFile: cfg.WorkflowFile,
		Branch:       cfg.GitHubBranch,
		APIBase:      cfg.GitHubAPIBase,
		RawBase:      cfg.RawBase,
		RepoPath:     cfg.PredictionRepoPath,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
	}
}

// Client talks to the GitHub REST API and raw content host.
type Client struct {
	settings   Settings
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a GitHub Actions client.
func NewClient(settings Settings, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		settings: settings,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// TriggerWorkflow dispatches the configured workflow on the configured
// branch. No retry is attempted.
func (c *Client) TriggerWorkflow(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"ref": c.settings.Branch})
	if err != nil {
		return fmt.Errorf("encode dispatch body: %w", err)
	}

	req, err := c.newAPIRequest(ctx, http.MethodPost, c.workflowURL("dispatches"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTriggerFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusCreated, http.StatusOK:
		c.logger.Info("workflow dispatched",
			"workflow", c.settings.WorkflowFile,
			"branch", c.settings.Branch,
		)
		return nil
	default:
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrTriggerFailed, resp.StatusCode, strings.TrimSpace(string(text)))
	}
}

// LatestRun returns the most recent run of the workflow. found is false when
// the workflow has no runs yet.
func (c *Client) LatestRun(ctx context.Context) (run Run, found bool, err error) {
	u := c.workflowURL("runs") + "?" + url.Values{"per_page": {"5"}}.Encode()
	req, err := c.newAPIRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Run{}, false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Run{}, false, fmt.Errorf("list workflow runs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		return Run{}, false, fmt.Errorf("github API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}

	var runs runsResponse
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		return Run{}, false, fmt.Errorf("decode workflow runs: %w", err)
	}
	if len(runs.WorkflowRuns) == 0 {
		return Run{}, false, nil
	}
	return runs.WorkflowRuns[0], true, nil
}

// WaitForCompletion polls the latest run every PollInterval until it is
// completed or PollTimeout elapses. Runs created before dispatchedAt are
// ignored. onStatus, if set, sees every observed status. On timeout the last
// observed run is returned with ErrPollTimeout.
func (c *Client) WaitForCompletion(ctx context.Context, dispatchedAt time.Time, onStatus func(Run)) (Run, error) {
	deadline := time.Now().Add(c.settings.PollTimeout)
	var last Run

	for {
		run, found, err := c.LatestRun(ctx)
		switch {
		case err != nil:
			c.logger.Warn("poll workflow runs", "error", err)
		case found && !run.CreatedAt.Before(dispatchedAt.Add(-dispatchSkew)):
			last = run
			if onStatus != nil {
				onStatus(run)
			}
			if run.Completed() {
				c.logger.Info("workflow run completed",
					"run_id", run.ID,
					"conclusion", run.Conclusion,
				)
				return run, nil
			}
		}

		if !time.Now().Before(deadline) {
			return last, fmt.Errorf("%w after %s", ErrPollTimeout, c.settings.PollTimeout)
		}

		timer := time.NewTimer(c.settings.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}
}

// RawURL is the raw content URL of the published prediction file.
func (c *Client) RawURL() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s",
		strings.TrimRight(c.settings.RawBase, "/"),
		c.settings.Owner, c.settings.Repo, c.settings.Branch,
		strings.TrimLeft(c.settings.RepoPath, "/"),
	)
}

// FetchLatestPredictions downloads and parses the prediction file published
// on the branch.
func (c *Client) FetchLatestPredictions(ctx context.Context) ([]domain.PredictionRow, error) {
	rawURL := c.RawURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRawFetch, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s (status %d)", ErrRawFetch, rawURL, resp.StatusCode)
	}
	return csvstore.DecodePredictions(resp.Body, rawURL)
}

func (c *Client) workflowURL(suffix string) string {
	return fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/%s",
		strings.TrimRight(c.settings.APIBase, "/"),
		c.settings.Owner, c.settings.Repo,
		url.PathEscape(c.settings.WorkflowFile), suffix,
	)
}

func (c *Client) newAPIRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.settings.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	return req, nil
}

// GitHub API response types.

type runsResponse struct {
	WorkflowRuns []Run `json:"workflow_runs"`
}
