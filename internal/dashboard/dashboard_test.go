package dashboard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/github"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, time.February, d, 0, 0, 0, 0, time.Local)
}

func featureRow(loc string, d int, pm25 float64) domain.DailyFeatureRow {
	return domain.DailyFeatureRow{
		Location: loc, Date: day(d),
		PM25Mean: pm25, PM25Max: pm25 + 10, PM10Mean: 40, NO2Mean: 20, SO2Mean: 5,
		TempMean: 21, HumidityMean: 55, WindSpeedMean: 3, PrecipSum: 0,
		PM25Roll3: pm25, PM25Roll7: pm25, PM25Trend3: math.NaN(),
	}
}

type fixture struct {
	dirs Dirs
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	dirs := Dirs{
		Data:        filepath.Join(root, "data"),
		Predictions: filepath.Join(root, "predictions"),
		Reports:     filepath.Join(root, "reports"),
	}
	for _, d := range []string{dirs.Data, dirs.Predictions, dirs.Reports} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	return fixture{dirs: dirs}
}

func (f fixture) writeProcessed(t *testing.T, rows []domain.DailyFeatureRow) {
	t.Helper()
	require.NoError(t, csvstore.WriteFeatureRows(filepath.Join(f.dirs.Data, "processed.csv"), rows, false))
}

func (f fixture) writePredictions(t *testing.T, name string, rows []domain.PredictionRow) {
	t.Helper()
	require.NoError(t, csvstore.WritePredictions(filepath.Join(f.dirs.Predictions, name), rows))
}

func newTestDashboard(t *testing.T, f fixture, remote RemoteControl) (*Dashboard, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	d, err := New(f.dirs, remote, m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return d, m
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestIndex_Empty(t *testing.T) {
	d, _ := newTestDashboard(t, newFixture(t), nil)

	rec := get(t, d.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "No processed data available")
	assert.Contains(t, body, "No prediction file found")
	assert.Contains(t, body, "No predictions available")
	assert.Contains(t, body, "Remote control is not configured")
}

func TestIndex_WithArtifacts(t *testing.T) {
	f := newFixture(t)
	var rows []domain.DailyFeatureRow
	for d := 1; d <= 12; d++ {
		rows = append(rows, featureRow("Loc_1", d, float64(10+d)), featureRow("Loc_2", d, 5))
	}
	f.writeProcessed(t, rows)
	f.writePredictions(t, "prediction_2024-02-11.csv", []domain.PredictionRow{
		{Location: "Loc_1", Date: day(11), PM25PredNextDay: 1, AQICategory: "Good"},
	})
	f.writePredictions(t, "prediction_2024-02-12.csv", []domain.PredictionRow{
		{Location: "Loc_2", Date: day(12), PM25PredNextDay: 8, AQICategory: "stale"},
		{Location: "Loc_1", Date: day(12), PM25PredNextDay: 60, AQICategory: "stale"},
	})
	require.NoError(t, os.WriteFile(filepath.Join(f.dirs.Reports, "model_metrics.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.dirs.Reports, "notes.txt"), []byte("x"), 0o644))

	d, _ := newTestDashboard(t, f, nil)
	rec := get(t, d.Handler(), "/?location=Loc_1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "prediction_2024-02-12.csv")
	assert.Contains(t, body, "Data last processed for: 2024-02-12")
	assert.Contains(t, body, "Locations: 2")
	assert.Contains(t, body, "Days of data: 12")
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, "<polyline")
	assert.Contains(t, body, "Latest observed PM2.5 (mean): <strong>22.00</strong>")
	assert.Contains(t, body, "Predicted PM2.5 next day: <strong>60.00</strong> (Unhealthy)")
	assert.Contains(t, body, "model_metrics.json")
	assert.NotContains(t, body, "notes.txt")
	assert.NotContains(t, body, "stale")

	// Sorted by prediction descending.
	assert.Less(t, strings.Index(body, "<td>60.00</td>"), strings.Index(body, "<td>8.00</td>"))
}

func TestBuildIndex_Filters(t *testing.T) {
	f := newFixture(t)
	var rows []domain.DailyFeatureRow
	for d := 1; d <= 20; d++ {
		rows = append(rows, featureRow("Loc_2", d, float64(d)), featureRow("Loc_1", d, 1))
	}
	f.writeProcessed(t, rows)

	d, _ := newTestDashboard(t, f, nil)
	view := d.buildIndex(map[string][]string{
		"location": {"Loc_2"},
		"from":     {"2024-02-03"},
		"to":       {"2024-02-05"},
	})

	assert.Empty(t, view.Errors)
	assert.Equal(t, []string{"Loc_1", "Loc_2"}, view.Locations)
	assert.Equal(t, "Loc_2", view.Location)
	assert.Equal(t, "2024-02-01", view.MinDate)
	assert.Equal(t, "2024-02-20", view.MaxDate)
	require.Len(t, view.Recent, 3)
	assert.True(t, view.Recent[0].Date.Equal(day(5)), "recent rows are newest first")
	assert.Equal(t, "5.00", view.LatestObserved)
	assert.Nil(t, view.Predicted)
	assert.False(t, view.PredictionMissing)
}

func TestBuildIndex_DefaultsAndRecentCap(t *testing.T) {
	f := newFixture(t)
	var rows []domain.DailyFeatureRow
	for d := 1; d <= 15; d++ {
		rows = append(rows, featureRow("Loc_2", d, 3), featureRow("Loc_1", d, 4))
	}
	f.writeProcessed(t, rows)
	f.writePredictions(t, "prediction_2024-02-15.csv", []domain.PredictionRow{
		{Location: "Loc_2", Date: day(15), PM25PredNextDay: 40},
	})

	d, _ := newTestDashboard(t, f, nil)
	view := d.buildIndex(map[string][]string{"location": {"Nowhere"}, "from": {"garbage"}})

	assert.Equal(t, "Loc_1", view.Location, "unknown location falls back to the first")
	assert.Len(t, view.Errors, 1)
	assert.Len(t, view.Recent, recentRows)
	assert.True(t, view.PredictionMissing)
	require.Len(t, view.Attention, 1)
	assert.Equal(t, domain.AQIUnhealthyForSensitiveGroups, view.Attention[0].AQICategory)
}

func TestIndex_SchemaErrorIsShown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dirs.Data, "processed.csv"), []byte("location,date\nLoc_1,2024-02-01\n"), 0o644))

	d, _ := newTestDashboard(t, f, nil)
	rec := get(t, d.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing column")
}

func TestDownloadLatest(t *testing.T) {
	f := newFixture(t)
	d, _ := newTestDashboard(t, f, nil)

	rec := get(t, d.Handler(), "/predictions/latest.csv")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.writePredictions(t, "prediction_2024-02-01.csv", []domain.PredictionRow{{Location: "old", Date: day(1), PM25PredNextDay: 1}})
	f.writePredictions(t, "prediction_2024-02-02.csv", []domain.PredictionRow{{Location: "new", Date: day(2), PM25PredNextDay: 2}})

	rec = get(t, d.Handler(), "/predictions/latest.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "prediction_2024-02-02.csv")
	assert.Contains(t, rec.Body.String(), "new,2024-02-02")
}

func TestCheckReadiness(t *testing.T) {
	f := newFixture(t)
	d, _ := newTestDashboard(t, f, nil)
	require.NoError(t, d.CheckReadiness(context.Background()))

	d.dirs.Data = filepath.Join(t.TempDir(), "missing")
	assert.Error(t, d.CheckReadiness(context.Background()))
}

type fakeRemote struct {
	triggerErr error
	runs       []github.Run
	waitErr    error
	rows       []domain.PredictionRow
	fetchErr   error
	fetched    bool
}

func (f *fakeRemote) TriggerWorkflow(context.Context) error { return f.triggerErr }

func (f *fakeRemote) WaitForCompletion(_ context.Context, _ time.Time, onStatus func(github.Run)) (github.Run, error) {
	var last github.Run
	for _, r := range f.runs {
		onStatus(r)
		last = r
	}
	return last, f.waitErr
}

func (f *fakeRemote) FetchLatestPredictions(context.Context) ([]domain.PredictionRow, error) {
	f.fetched = true
	return f.rows, f.fetchErr
}

func postRun(t *testing.T, d *Dashboard) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control/run", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec
}

func TestControlRun(t *testing.T) {
	queued := github.Run{ID: 9, Status: "queued"}
	success := github.Run{ID: 9, Status: "completed", Conclusion: "success", HTMLURL: "https://github.test/runs/9"}
	failure := github.Run{ID: 9, Status: "completed", Conclusion: "failure", HTMLURL: "https://github.test/runs/9"}

	tests := []struct {
		name     string
		remote   *fakeRemote
		outcome  string
		contains []string
		fetched  bool
	}{
		{
			name:     "success",
			remote:   &fakeRemote{runs: []github.Run{queued, success}, rows: []domain.PredictionRow{{Location: "Loc_1", Date: day(2), PM25PredNextDay: 12.5, AQICategory: "Moderate"}}},
			outcome:  outcomeSuccess,
			contains: []string{"Workflow triggered successfully", "status=queued conclusion=none", "status=completed conclusion=success", "Loc_1", "12.50"},
			fetched:  true,
		},
		{
			name:     "trigger failure",
			remote:   &fakeRemote{triggerErr: fmt.Errorf("%w: status 422", github.ErrTriggerFailed)},
			outcome:  outcomeError,
			contains: []string{"Trigger failed", "status 422"},
		},
		{
			name:     "run failed",
			remote:   &fakeRemote{runs: []github.Run{failure}},
			outcome:  outcomeFailure,
			contains: []string{"Pipeline run failed", "https://github.test/runs/9"},
		},
		{
			name:     "timeout",
			remote:   &fakeRemote{runs: []github.Run{queued}, waitErr: github.ErrPollTimeout},
			outcome:  outcomeTimeout,
			contains: []string{"No workflow run found or timed out"},
		},
		{
			name:     "raw fetch failure",
			remote:   &fakeRemote{runs: []github.Run{success}, fetchErr: fmt.Errorf("%w: status 404", github.ErrRawFetch)},
			outcome:  outcomeError,
			contains: []string{"could not fetch raw file"},
			fetched:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, m := newTestDashboard(t, newFixture(t), tt.remote)
			body := postRun(t, d).Body.String()
			for _, s := range tt.contains {
				assert.Contains(t, body, s)
			}
			assert.Equal(t, tt.fetched, tt.remote.fetched)
			assert.InDelta(t, 1, testutil.ToFloat64(m.RemoteTriggers.WithLabelValues(tt.outcome)), 1e-9)
		})
	}
}

func TestControlRun_Disabled(t *testing.T) {
	d, m := newTestDashboard(t, newFixture(t), nil)
	body := postRun(t, d).Body.String()
	assert.Contains(t, body, "Remote control is not configured")
	assert.InDelta(t, 1, testutil.ToFloat64(m.RemoteTriggers.WithLabelValues(outcomeDisabled)), 1e-9)
}

func TestControlRun_MethodNotAllowed(t *testing.T) {
	d, _ := newTestDashboard(t, newFixture(t), &fakeRemote{})
	rec := get(t, d.Handler(), "/control/run")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBuildChart(t *testing.T) {
	assert.Nil(t, buildChart(nil))

	rows := []domain.DailyFeatureRow{featureRow("L", 1, 10), featureRow("L", 2, 20), featureRow("L", 3, 30)}
	rows[1].PM25Roll3 = math.NaN()
	c := buildChart(rows)
	require.NotNil(t, c)
	require.Len(t, c.Series, len(trendSeries))
	assert.Len(t, c.Series[0].Markers, 3)
	assert.Len(t, c.Series[2].Markers, 2, "missing values are skipped")

	// First point sits on the left edge, last on the right.
	assert.InDelta(t, c.Left, c.Series[0].Markers[0].X, 0.1)
	assert.InDelta(t, c.Right(), c.Series[0].Markers[2].X, 0.1)
	// pm25_max peaks at 40, so the axis tops out at 50.
	assert.Equal(t, "50", c.YTicks[len(c.YTicks)-1].Label)
	assert.Len(t, c.XTicks, 3)
}

func TestNiceCeil(t *testing.T) {
	for in, want := range map[float64]float64{0.7: 1, 1: 1, 1.5: 2, 3: 5, 7: 10, 40: 50, 120: 200} {
		assert.InDelta(t, want, niceCeil(in), 1e-9, "niceCeil(%v)", in)
	}
}

func TestLatestPredictionFile_IgnoresLatestCSV(t *testing.T) {
	f := newFixture(t)
	f.writePredictions(t, "prediction_2024-02-03.csv", nil)
	require.NoError(t, os.WriteFile(filepath.Join(f.dirs.Predictions, "latest.csv"), []byte("x"), 0o644))

	path, err := latestPredictionFile(f.dirs.Predictions)
	require.NoError(t, err)
	assert.Equal(t, "prediction_2024-02-03.csv", filepath.Base(path))
}
