package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/escrowledger/internal/integrity"
	"github.com/angelmondragon/escrowledger/pkg/logger"
)

type fakeScanner struct {
	report *integrity.Report
	err    error
	calls  int
}

func (f *fakeScanner) RunIntegrityScan(context.Context) (*integrity.Report, error) {
	f.calls++
	return f.report, f.err
}

func TestIntegrityScanJobRunsScanner(t *testing.T) {
	scanner := &fakeScanner{report: &integrity.Report{Recorded: 1}}
	job, err := NewIntegrityScanJob(IntegrityScanJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "cron-test"}),
		Scanner: scanner,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Name() != IntegrityScanJobName {
		t.Fatalf("default name = %s", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if scanner.calls != 1 {
		t.Fatalf("scanner calls = %d", scanner.calls)
	}
}

func TestIntegrityScanJobSurfacesCheckErrors(t *testing.T) {
	boom := errors.New("totals unavailable")
	scanner := &fakeScanner{report: &integrity.Report{}, err: boom}
	job, _ := NewIntegrityScanJob(IntegrityScanJobParams{
		Name:    IntegrityScanDailyJobName,
		Logger:  logger.New(logger.Options{ServiceName: "cron-test"}),
		Scanner: scanner,
	})
	if err := job.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected check error, got %v", err)
	}
	if job.Name() != IntegrityScanDailyJobName {
		t.Fatalf("name = %s", job.Name())
	}
}

func TestIntegrityScanJobIgnoresOverlap(t *testing.T) {
	scanner := &fakeScanner{err: integrity.ErrScanInProgress}
	job, _ := NewIntegrityScanJob(IntegrityScanJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "cron-test"}),
		Scanner: scanner,
	})
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("overlap should not fail the job: %v", err)
	}
}
