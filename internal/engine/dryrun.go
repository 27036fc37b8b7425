package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sparkpilot/sparkpilot/internal/domain"
)

// DryRunAdapter synthesises engine identifiers and simulates run progression
// by wall time. It never touches AWS.
type DryRunAdapter struct {
	logGroupPrefix string
	now            func() time.Time
}

func NewDryRunAdapter(logGroupPrefix string) *DryRunAdapter {
	return &DryRunAdapter{
		logGroupPrefix: logGroupPrefix,
		now:            time.Now,
	}
}

// WithClock overrides the wall clock; tests use it to drive progression.
func (a *DryRunAdapter) WithClock(now func() time.Time) *DryRunAdapter {
	a.now = now
	return a
}

func (a *DryRunAdapter) CreateVirtualCluster(_ context.Context, env *domain.Environment) (string, error) {
	if env.EKSClusterARN == "" {
		return "", fmt.Errorf("missing EKS cluster ARN")
	}
	if env.EKSNamespace == "" {
		return "", fmt.Errorf("missing EKS namespace")
	}
	return "vc-" + randomHex(10), nil
}

func (a *DryRunAdapter) StartJobRun(_ context.Context, env *domain.Environment, _ *domain.Job, run *domain.Run) (*Dispatch, error) {
	logGroup := fmt.Sprintf("%s/%s", a.logGroupPrefix, env.ID)
	streamPrefix := fmt.Sprintf("%s/attempt-%d", run.ID, run.Attempt)
	return &Dispatch{
		EMRJobRunID:     "jr-" + randomHex(12),
		LogGroup:        logGroup,
		LogStreamPrefix: streamPrefix,
		DriverLogURI:    fmt.Sprintf("cloudwatch://%s/%s/driver", logGroup, streamPrefix),
		SparkUIURI:      fmt.Sprintf("https://sparkhistory.local/%s", run.ID),
	}, nil
}

// DescribeJobRun simulates engine progression: unstarted runs are PENDING,
// then SUBMITTED under 10s, RUNNING under 40s, COMPLETED after.
func (a *DryRunAdapter) DescribeJobRun(_ context.Context, _ *domain.Environment, run *domain.Run) (string, string, error) {
	if run.CancellationRequested {
		return domain.EngineStateCancelled, "", nil
	}
	if run.StartedAt == nil {
		return domain.EngineStatePending, "", nil
	}
	elapsed := a.now().Sub(*run.StartedAt)
	switch {
	case elapsed < 10*time.Second:
		return domain.EngineStateSubmitted, "", nil
	case elapsed < 40*time.Second:
		return domain.EngineStateRunning, "", nil
	default:
		return domain.EngineStateCompleted, "", nil
	}
}

func (a *DryRunAdapter) CancelJobRun(_ context.Context, _ *domain.Environment, _ *domain.Run) (string, error) {
	return "", nil
}

func (a *DryRunAdapter) FetchLogLines(_ context.Context, _, _, logGroup, logStreamPrefix string, _ int) ([]string, error) {
	if logGroup == "" {
		return []string{}, nil
	}
	runHint := logStreamPrefix
	if runHint == "" {
		runHint = "unknown-run"
	}
	return []string{
		fmt.Sprintf("[%s] Spark application started", runHint),
		fmt.Sprintf("[%s] Executors requested", runHint),
		fmt.Sprintf("[%s] Job completed successfully", runHint),
	}, nil
}

func randomHex(n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(hex) {
		n = len(hex)
	}
	return hex[:n]
}
