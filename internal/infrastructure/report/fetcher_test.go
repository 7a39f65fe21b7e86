package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/imeetcentral/fattail-sync/internal/infrastructure/fattail"
)

type fakeOrders struct {
	reports     []fattail.SavedReport
	query       fattail.ReportQuery
	queriedID   int64
	submitted   *fattail.ReportQuery
	statuses    []string
	statusCalls int
	downloadURL string
}

func (f *fakeOrders) SavedReports(ctx context.Context) ([]fattail.SavedReport, error) {
	return f.reports, nil
}

func (f *fakeOrders) SavedReportQuery(ctx context.Context, savedReportID int64) (*fattail.ReportQuery, error) {
	f.queriedID = savedReportID
	query := f.query
	return &query, nil
}

func (f *fakeOrders) RunReportJob(ctx context.Context, query *fattail.ReportQuery) (int64, error) {
	f.submitted = query
	return 42, nil
}

func (f *fakeOrders) ReportJob(ctx context.Context, jobID int64) (*fattail.ReportJob, error) {
	status := f.statuses[len(f.statuses)-1]
	if f.statusCalls < len(f.statuses) {
		status = f.statuses[f.statusCalls]
	}
	f.statusCalls++
	return &fattail.ReportJob{ReportJobID: jobID, Status: status}, nil
}

func (f *fakeOrders) ReportDownloadURL(ctx context.Context, jobID int64) (string, error) {
	return f.downloadURL, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchEndToEnd(t *testing.T) {
	// 1. Serve the CSV the finished job points at
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "Client ID,Campaign Name\n7,Spring Launch\n8,Fall Launch\n")
	}))
	defer server.Close()

	orders := &fakeOrders{
		reports: []fattail.SavedReport{
			{SavedReportID: 3, Name: "sync"},
			{SavedReportID: 9, Name: "sync"},
			{SavedReportID: 5, Name: "other"},
		},
		query: fattail.ReportQuery{
			ReportID: 9,
			QueryParameterList: fattail.QueryParameterList{
				QueryParameter: []fattail.QueryParameter{
					{ParameterType: "StartDate", ParameterValue: "01/01/2020"},
					{ParameterType: "EndDate", ParameterValue: "01/01/2021"},
					{ParameterType: "Other", ParameterValue: "keep"},
				},
			},
		},
		statuses:    []string{"Running", "Done"},
		downloadURL: server.URL,
	}

	fetcher := NewFetcher(orders, Options{
		TempDir:      t.TempDir(),
		PollInterval: time.Millisecond,
		SpanYears:    2,
		Logger:       testLogger(),
	})
	fetcher.now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}

	// 2. Fetch the report end to end
	table, err := fetcher.Fetch(context.Background(), "sync")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	// 3. Duplicate names resolve to the highest report id
	if orders.queriedID != 9 {
		t.Errorf("expected report 9 to be queried, got %d", orders.queriedID)
	}

	// 4. The date window is rewritten; other parameters stay untouched
	params := orders.submitted.QueryParameterList.QueryParameter
	if params[0].ParameterValue != "03/15/2026" {
		t.Errorf("expected start date 03/15/2026, got %q", params[0].ParameterValue)
	}
	if params[1].ParameterValue != "03/15/2028" {
		t.Errorf("expected end date 03/15/2028, got %q", params[1].ParameterValue)
	}
	if params[2].ParameterValue != "keep" {
		t.Errorf("expected untouched parameter, got %q", params[2].ParameterValue)
	}

	// 5. Polling waited for the job to finish
	if orders.statusCalls != 2 {
		t.Errorf("expected 2 status polls, got %d", orders.statusCalls)
	}

	// 6. The table indexes the downloaded rows
	if table.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.Len())
	}
	if got := table.Get(1, "Campaign Name"); got != "Fall Launch" {
		t.Errorf("expected second campaign name, got %q", got)
	}

	// 7. Cleanup removes the downloaded file
	path := fetcher.downloads[0]
	fetcher.Cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected download %s to be removed", path)
	}
}

func TestFetchUnknownReportIsFatal(t *testing.T) {
	orders := &fakeOrders{reports: []fattail.SavedReport{{SavedReportID: 1, Name: "other"}}}
	fetcher := NewFetcher(orders, Options{TempDir: t.TempDir(), Logger: testLogger()})

	_, err := fetcher.Fetch(context.Background(), "missing")
	if !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestFetchJobTimeout(t *testing.T) {
	// A job that never finishes must fail the run once the budget is spent
	orders := &fakeOrders{
		reports:  []fattail.SavedReport{{SavedReportID: 1, Name: "sync"}},
		statuses: []string{"Running"},
	}
	fetcher := NewFetcher(orders, Options{
		TempDir:      t.TempDir(),
		Timeout:      30 * time.Millisecond,
		PollInterval: time.Millisecond,
		Logger:       testLogger(),
	})

	_, err := fetcher.Fetch(context.Background(), "sync")
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestTableRequire(t *testing.T) {
	table := NewTable([][]string{
		{"Client ID", " Drop ID ", "Sold Amount"},
		{"7", "9"},
	})

	// 1. Present columns pass, header whitespace notwithstanding
	if err := table.Require("Client ID", "Drop ID"); err != nil {
		t.Fatalf("Require failed: %v", err)
	}

	// 2. Missing columns are all named in the error
	err := table.Require("Client ID", "IO Status", "Sales Rep")
	if err == nil {
		t.Fatal("expected an error for missing columns")
	}
	for _, want := range []string{"IO Status", "Sales Rep"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to name %q, got %v", want, err)
		}
	}

	// 3. Ragged rows read as empty, not as a panic
	if got := table.Get(0, "Sold Amount"); got != "" {
		t.Errorf("expected empty cell on ragged row, got %q", got)
	}
}
