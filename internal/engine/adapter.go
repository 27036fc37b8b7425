// Package engine abstracts the Spark execution backend. The control plane
// depends only on the Adapter interface; EMR-on-EKS is the real
// implementation and a dry-run variant backs local development and tests.
package engine

import (
	"context"

	"github.com/sparkpilot/sparkpilot/internal/domain"
)

// Dispatch is the result of handing a run to the engine.
type Dispatch struct {
	EMRJobRunID     string
	LogGroup        string
	LogStreamPrefix string
	DriverLogURI    string
	SparkUIURI      string
	AWSRequestID    string
}

// Adapter is the capability set the core consumes. Implementations are
// responsible for their own idempotency on CreateVirtualCluster; the core
// invokes it at most once per environment on the happy path.
type Adapter interface {
	// CreateVirtualCluster registers an engine virtual cluster against the
	// environment's EKS cluster and namespace.
	CreateVirtualCluster(ctx context.Context, env *domain.Environment) (string, error)

	// StartJobRun submits the run. Merged Spark configuration is the job's
	// conf overlaid with the run's overrides; effective args are the run's
	// overrides when present, else the job's.
	StartJobRun(ctx context.Context, env *domain.Environment, job *domain.Job, run *domain.Run) (*Dispatch, error)

	// DescribeJobRun reports the engine-side state and an optional failure
	// message. A run with cancellation requested and no remote progress
	// reports CANCELLED.
	DescribeJobRun(ctx context.Context, env *domain.Environment, run *domain.Run) (state string, errorMessage string, err error)

	// CancelJobRun is idempotent and a no-op without a remote id. The
	// returned string is the upstream request id, when available.
	CancelJobRun(ctx context.Context, env *domain.Environment, run *domain.Run) (string, error)

	// FetchLogLines returns up to limit log lines. A missing log group or a
	// benign not-found upstream yields an empty slice, not an error.
	FetchLogLines(ctx context.Context, roleARN, region, logGroup, logStreamPrefix string, limit int) ([]string, error)
}
