package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/escrowledger/internal/integrity"
	"github.com/angelmondragon/escrowledger/pkg/logger"
)

const (
	IntegrityScanJobName      = "integrity-scan"
	IntegrityScanDailyJobName = "integrity-scan-daily"
)

type integrityScanner interface {
	RunIntegrityScan(ctx context.Context) (*integrity.Report, error)
}

// IntegrityScanJobParams wires one scan job. Both cadences share the same scanner.
type IntegrityScanJobParams struct {
	Name    string
	Logger  *logger.Logger
	Scanner integrityScanner
}

type integrityScanJob struct {
	name    string
	logg    *logger.Logger
	scanner integrityScanner
}

func NewIntegrityScanJob(params IntegrityScanJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Scanner == nil {
		return nil, fmt.Errorf("integrity scanner required")
	}
	name := params.Name
	if name == "" {
		name = IntegrityScanJobName
	}
	return &integrityScanJob{name: name, logg: params.Logger, scanner: params.Scanner}, nil
}

func (j *integrityScanJob) Name() string { return j.name }

func (j *integrityScanJob) Run(ctx context.Context) error {
	report, err := j.scanner.RunIntegrityScan(ctx)
	if errors.Is(err, integrity.ErrScanInProgress) {
		j.logg.Info(ctx, "integrity scan already running in this process; skipping")
		return nil
	}
	if report != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"violations":   len(report.Violations),
			"recorded":     report.Recorded,
			"deduplicated": report.Deduplicated,
		})
		j.logg.Info(logCtx, "integrity scan finished")
	}
	return err
}
