package dashboard

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

const (
	recentRows  = 10
	recentFiles = 5
)

var reportExts = []string{".csv", ".json", ".xlsx"}

type quickStats struct {
	LatestDate string
	Locations  int
	Days       int
}

type indexView struct {
	GeneratedAt       string
	Errors            []string
	PredictionFile    string
	HasProcessed      bool
	Stats             quickStats
	Locations         []string
	Location          string
	From, To          string
	MinDate, MaxDate  string
	Chart             *chart
	LatestObserved    string
	Predicted         *domain.PredictionRow
	PredictionMissing bool
	Recent            []domain.DailyFeatureRow
	Predictions       []domain.PredictionRow
	Attention         []domain.PredictionRow
	Reports           []string
	RemoteEnabled     bool
}

func (d *Dashboard) buildIndex(q url.Values) indexView {
	view := indexView{GeneratedAt: now(), RemoteEnabled: d.remote != nil}

	rows, err := csvstore.ReadFeatureRows(d.processedPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		view.Errors = append(view.Errors, err.Error())
	}

	predPath, err := latestPredictionFile(d.dirs.Predictions)
	if err != nil {
		view.Errors = append(view.Errors, err.Error())
	}
	var preds []domain.PredictionRow
	if predPath != "" {
		view.PredictionFile = filepath.Base(predPath)
		if preds, err = csvstore.ReadPredictions(predPath); err != nil {
			view.Errors = append(view.Errors, err.Error())
		}
	}
	view.Predictions = rankPredictions(preds)
	view.Attention = needingAttention(view.Predictions)

	if reports, err := reportFiles(d.dirs.Reports); err != nil {
		view.Errors = append(view.Errors, err.Error())
	} else {
		view.Reports = reports
	}

	if len(rows) == 0 {
		return view
	}
	view.HasProcessed = true
	view.Stats = computeStats(rows)
	view.Locations = locations(rows)

	view.Location = q.Get("location")
	if !slices.Contains(view.Locations, view.Location) {
		view.Location = view.Locations[0]
	}

	minDate, maxDate := dateRange(rows)
	view.MinDate, view.MaxDate = formatDay(minDate), formatDay(maxDate)
	from, err := parseDay(q.Get("from"), minDate)
	if err != nil {
		view.Errors = append(view.Errors, fmt.Sprintf("invalid from date %q", q.Get("from")))
	}
	to, err := parseDay(q.Get("to"), maxDate)
	if err != nil {
		view.Errors = append(view.Errors, fmt.Sprintf("invalid to date %q", q.Get("to")))
	}
	view.From, view.To = formatDay(from), formatDay(to)

	subset := filterRows(rows, view.Location, from, to)
	view.Chart = buildChart(subset)
	if len(subset) > 0 {
		view.LatestObserved = formatNum(subset[len(subset)-1].PM25Mean)
		if preds != nil {
			if p, ok := findPrediction(view.Predictions, view.Location); ok {
				view.Predicted = &p
			} else {
				view.PredictionMissing = true
			}
		}
	}

	recent := slices.Clone(subset)
	slices.Reverse(recent)
	if len(recent) > recentRows {
		recent = recent[:recentRows]
	}
	view.Recent = recent
	return view
}

// latestPredictionFile returns the last prediction_*.csv by filename, or ""
// when there is none.
func latestPredictionFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "prediction_*.csv"))
	if err != nil {
		return "", fmt.Errorf("glob predictions: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	slices.Sort(matches)
	return matches[len(matches)-1], nil
}

// reportFiles lists the most recent report file names in name order.
func reportFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && slices.Contains(reportExts, strings.ToLower(filepath.Ext(e.Name()))) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	if len(names) > recentFiles {
		names = names[len(names)-recentFiles:]
	}
	return names, nil
}

// rankPredictions sorts by predicted PM2.5 descending and recomputes the AQI
// category from the value.
func rankPredictions(rows []domain.PredictionRow) []domain.PredictionRow {
	out := slices.Clone(rows)
	for i := range out {
		out[i].AQICategory = domain.AQICategory(out[i].PM25PredNextDay)
	}
	slices.SortStableFunc(out, func(a, b domain.PredictionRow) int {
		return cmp.Compare(b.PM25PredNextDay, a.PM25PredNextDay)
	})
	return out
}

func needingAttention(rows []domain.PredictionRow) []domain.PredictionRow {
	var out []domain.PredictionRow
	for _, r := range rows {
		if domain.NeedsAttention(r.AQICategory) {
			out = append(out, r)
		}
	}
	return out
}

func findPrediction(rows []domain.PredictionRow, location string) (domain.PredictionRow, bool) {
	for _, r := range rows {
		if r.Location == location {
			return r, true
		}
	}
	return domain.PredictionRow{}, false
}

func computeStats(rows []domain.DailyFeatureRow) quickStats {
	locs := make(map[string]struct{})
	days := make(map[string]struct{})
	var latest time.Time
	for _, r := range rows {
		locs[r.Location] = struct{}{}
		days[formatDay(r.Date)] = struct{}{}
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return quickStats{LatestDate: formatDay(latest), Locations: len(locs), Days: len(days)}
}

func locations(rows []domain.DailyFeatureRow) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range rows {
		if _, ok := seen[r.Location]; !ok {
			seen[r.Location] = struct{}{}
			out = append(out, r.Location)
		}
	}
	slices.Sort(out)
	return out
}

func dateRange(rows []domain.DailyFeatureRow) (lo, hi time.Time) {
	lo, hi = rows[0].Date, rows[0].Date
	for _, r := range rows[1:] {
		if r.Date.Before(lo) {
			lo = r.Date
		}
		if r.Date.After(hi) {
			hi = r.Date
		}
	}
	return lo, hi
}

// filterRows keeps one location's rows whose calendar day lies in [from, to],
// sorted by date.
func filterRows(rows []domain.DailyFeatureRow, location string, from, to time.Time) []domain.DailyFeatureRow {
	lo := startOfDay(from)
	hi := startOfDay(to).AddDate(0, 0, 1)
	var out []domain.DailyFeatureRow
	for _, r := range rows {
		if r.Location == location && !r.Date.Before(lo) && r.Date.Before(hi) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b domain.DailyFeatureRow) int { return a.Date.Compare(b.Date) })
	return out
}

func parseDay(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	t, err := time.ParseInLocation(domain.DateLayout, s, time.Local)
	if err != nil {
		return def, err
	}
	return t, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func formatDay(t time.Time) string {
	return t.Format(domain.DateLayout)
}

// formatDate shows midnight values as a day and anything else as a full
// timestamp, so hourly tables stay readable.
func formatDate(t time.Time) string {
	if t.Equal(startOfDay(t)) {
		return formatDay(t)
	}
	return t.Format(domain.TimestampLayout)
}

func formatNum(v float64) string {
	if domain.Missing(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
