// Package report drives the order-management reporting pipeline: locate a
// saved report, run it, poll the job, download the CSV and index it.
package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/google/uuid"

	"github.com/imeetcentral/fattail-sync/internal/infrastructure/fattail"
)

// ErrReportNotFound means no saved report carries the requested name. The
// run cannot proceed without its input.
var ErrReportNotFound = errors.New("saved report not found")

const (
	statusDone   = "Done"
	dateLayout   = "01/02/2006"
	pollInterval = 5 * time.Second
)

type orderReports interface {
	SavedReports(ctx context.Context) ([]fattail.SavedReport, error)
	SavedReportQuery(ctx context.Context, savedReportID int64) (*fattail.ReportQuery, error)
	RunReportJob(ctx context.Context, query *fattail.ReportQuery) (int64, error)
	ReportJob(ctx context.Context, jobID int64) (*fattail.ReportJob, error)
	ReportDownloadURL(ctx context.Context, jobID int64) (string, error)
}

// Options tune a Fetcher; zero values fall back to the defaults.
type Options struct {
	TempDir      string
	Timeout      time.Duration
	PollInterval time.Duration
	SpanYears    int
	Logger       *slog.Logger
}

// Fetcher turns a saved-report name into a parsed table. Downloaded files
// live under the temp dir until Cleanup.
type Fetcher struct {
	orders       orderReports
	httpClient   *http.Client
	tempDir      string
	jobTimeout   time.Duration
	pollInterval time.Duration
	spanYears    int
	logger       *slog.Logger
	now          func() time.Time
	downloads    []string
}

func NewFetcher(orders orderReports, opts Options) *Fetcher {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = pollInterval
	}
	if opts.SpanYears <= 0 {
		opts.SpanYears = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Fetcher{
		orders:       orders,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		tempDir:      opts.TempDir,
		jobTimeout:   opts.Timeout,
		pollInterval: opts.PollInterval,
		spanYears:    opts.SpanYears,
		logger:       opts.Logger,
		now:          time.Now,
	}
}

// Fetch runs the named saved report and returns its rows. Every failure
// here is fatal to the run: no report means nothing to reconcile.
func (f *Fetcher) Fetch(ctx context.Context, name string) (*Table, error) {
	savedReportID, err := f.findReport(ctx, name)
	if err != nil {
		return nil, err
	}

	query, err := f.orders.SavedReportQuery(ctx, savedReportID)
	if err != nil {
		return nil, err
	}
	f.rewriteDates(query)

	jobID, err := f.orders.RunReportJob(ctx, query)
	if err != nil {
		return nil, err
	}
	f.logger.Info("report job submitted", "report", name, "job_id", jobID)

	if err := f.awaitJob(ctx, jobID); err != nil {
		return nil, err
	}

	url, err := f.orders.ReportDownloadURL(ctx, jobID)
	if err != nil {
		return nil, err
	}
	path, err := f.download(ctx, url)
	if err != nil {
		return nil, err
	}
	f.logger.Info("report downloaded", "report", name, "path", path)

	return f.parse(path)
}

// Cleanup removes every CSV downloaded by this fetcher.
func (f *Fetcher) Cleanup() {
	for _, path := range f.downloads {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("failed to remove downloaded report", "path", path, "error", err)
		}
	}
	f.downloads = nil
}

// findReport resolves a saved-report name to its id. When several reports
// share the name, the highest id wins: it is the most recently created
// definition.
func (f *Fetcher) findReport(ctx context.Context, name string) (int64, error) {
	reports, err := f.orders.SavedReports(ctx)
	if err != nil {
		return 0, err
	}
	var found int64
	for _, r := range reports {
		if r.Name == name && r.SavedReportID > found {
			found = r.SavedReportID
		}
	}
	if found == 0 {
		return 0, fmt.Errorf("%w: %q", ErrReportNotFound, name)
	}
	return found, nil
}

// rewriteDates pins the saved query to a window starting today, so a
// stale saved definition cannot narrow the run.
func (f *Fetcher) rewriteDates(query *fattail.ReportQuery) {
	today := f.now()
	for i, p := range query.QueryParameterList.QueryParameter {
		switch p.ParameterType {
		case "StartDate":
			query.QueryParameterList.QueryParameter[i].ParameterValue = today.Format(dateLayout)
		case "EndDate":
			query.QueryParameterList.QueryParameter[i].ParameterValue = today.AddDate(f.spanYears, 0, 0).Format(dateLayout)
		}
	}
}

func (f *Fetcher) awaitJob(ctx context.Context, jobID int64) error {
	t := timeout.New[*fattail.ReportJob](timeout.Config{
		DefaultTimeout: f.jobTimeout,
	})
	_, err := t.Execute(ctx, f.jobTimeout, func(ctx context.Context) (*fattail.ReportJob, error) {
		for {
			job, err := f.orders.ReportJob(ctx, jobID)
			if err != nil {
				return nil, err
			}
			if strings.EqualFold(job.Status, statusDone) {
				return job, nil
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.pollInterval):
			}
		}
	})
	if err != nil {
		return fmt.Errorf("report job %d did not finish: %w", jobID, err)
	}
	return nil
}

func (f *Fetcher) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("report download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(f.tempDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	path := filepath.Join(f.tempDir, uuid.NewString()+".csv")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()
	if _, err := io.Copy(file, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	f.downloads = append(f.downloads, path)
	return path, nil
}

func (f *Fetcher) parse(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse report csv: %w", err)
	}
	return NewTable(records), nil
}
