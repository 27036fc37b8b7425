// Package domain holds the control-plane entities and their state machines.
package domain

import "time"

// Environment status values.
const (
	EnvironmentStatusProvisioning = "provisioning"
	EnvironmentStatusReady        = "ready"
	EnvironmentStatusDegraded     = "degraded"
	EnvironmentStatusUpgrading    = "upgrading"
	EnvironmentStatusDeleting     = "deleting"
	EnvironmentStatusDeleted      = "deleted"
	EnvironmentStatusFailed       = "failed"
)

// Provisioning modes.
const (
	ProvisioningModeFull     = "full"
	ProvisioningModeBYOCLite = "byoc_lite"
)

// ProvisioningOperation states. The intermediate steps run in the order
// listed by ProvisioningSteps.
const (
	ProvisioningStateQueued              = "queued"
	ProvisioningStateValidatingBootstrap = "validating_bootstrap"
	ProvisioningStateProvisioningNetwork = "provisioning_network"
	ProvisioningStateProvisioningEKS     = "provisioning_eks"
	ProvisioningStateProvisioningEMR     = "provisioning_emr"
	ProvisioningStateValidatingRuntime   = "validating_runtime"
	ProvisioningStateReady               = "ready"
	ProvisioningStateFailed              = "failed"
)

// ProvisioningSteps is the fixed step sequence of the full provisioning path.
var ProvisioningSteps = []string{
	ProvisioningStateValidatingBootstrap,
	ProvisioningStateProvisioningNetwork,
	ProvisioningStateProvisioningEKS,
	ProvisioningStateProvisioningEMR,
	ProvisioningStateValidatingRuntime,
}

// Run states.
const (
	RunStateQueued      = "queued"
	RunStateDispatching = "dispatching"
	RunStateAccepted    = "accepted"
	RunStateRunning     = "running"
	RunStateSucceeded   = "succeeded"
	RunStateFailed      = "failed"
	RunStateCancelled   = "cancelled"
	RunStateTimedOut    = "timed_out"
)

// ActiveRunStates are the states counted against environment quotas.
var ActiveRunStates = []string{RunStateQueued, RunStateDispatching, RunStateAccepted, RunStateRunning}

// IsTerminalRunState reports whether a run may no longer transition.
func IsTerminalRunState(state string) bool {
	switch state {
	case RunStateSucceeded, RunStateFailed, RunStateCancelled, RunStateTimedOut:
		return true
	}
	return false
}

// Engine-side job run states as reported by EMR-on-EKS.
const (
	EngineStatePending       = "PENDING"
	EngineStateSubmitted     = "SUBMITTED"
	EngineStateRunning       = "RUNNING"
	EngineStateCompleted     = "COMPLETED"
	EngineStateFailed        = "FAILED"
	EngineStateCancelled     = "CANCELLED"
	EngineStateCancelPending = "CANCEL_PENDING"
)

// engineToRunState maps engine states onto platform run states. Unknown
// engine states map to failed.
var engineToRunState = map[string]string{
	EngineStatePending:       RunStateAccepted,
	EngineStateSubmitted:     RunStateAccepted,
	EngineStateRunning:       RunStateRunning,
	EngineStateCompleted:     RunStateSucceeded,
	EngineStateFailed:        RunStateFailed,
	EngineStateCancelled:     RunStateCancelled,
	EngineStateCancelPending: RunStateRunning,
}

// RunStateFromEngine maps an engine job run state to the platform run state.
func RunStateFromEngine(engineState string) string {
	if mapped, ok := engineToRunState[engineState]; ok {
		return mapped
	}
	return RunStateFailed
}

type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EnvironmentQuotas struct {
	MaxConcurrentRuns int `json:"max_concurrent_runs"`
	MaxVCPU           int `json:"max_vcpu"`
	MaxRunSeconds     int `json:"max_run_seconds"`
}

type Environment struct {
	ID                  string
	TenantID            string
	Cloud               string
	Region              string
	Engine              string
	ProvisioningMode    string
	Status              string
	CustomerRoleARN     string
	EKSClusterARN       string
	EKSNamespace        string
	EMRVirtualClusterID string
	WarmPoolEnabled     bool
	MaxConcurrentRuns   int
	MaxVCPU             int
	MaxRunSeconds       int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type ProvisioningOperation struct {
	ID             string
	EnvironmentID  string
	State          string
	Step           string
	Message        string
	LogsURI        string
	StartedAt      time.Time
	EndedAt        *time.Time
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal reports whether the operation has finished (ready or failed).
func (op *ProvisioningOperation) Terminal() bool {
	return op.State == ProvisioningStateReady || op.State == ProvisioningStateFailed
}

type Job struct {
	ID               string
	EnvironmentID    string
	Name             string
	ArtifactURI      string
	ArtifactDigest   string
	Entrypoint       string
	Args             []string
	SparkConf        map[string]string
	RetryMaxAttempts int
	TimeoutSeconds   int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RequestedResources describes the driver/executor shape of a run.
type RequestedResources struct {
	DriverVCPU        int `json:"driver_vcpu"`
	DriverMemoryGB    int `json:"driver_memory_gb"`
	ExecutorVCPU      int `json:"executor_vcpu"`
	ExecutorMemoryGB  int `json:"executor_memory_gb"`
	ExecutorInstances int `json:"executor_instances"`
}

// TotalVCPU is driver vCPU plus executor vCPU across all instances.
func (r RequestedResources) TotalVCPU() int {
	return r.DriverVCPU + r.ExecutorVCPU*r.ExecutorInstances
}

// TotalMemoryGB is driver memory plus executor memory across all instances.
func (r RequestedResources) TotalMemoryGB() int {
	return r.DriverMemoryGB + r.ExecutorMemoryGB*r.ExecutorInstances
}

type Run struct {
	ID                    string
	JobID                 string
	EnvironmentID         string
	State                 string
	Attempt               int
	IdempotencyKey        string
	RequestedResources    RequestedResources
	ArgsOverrides         []string
	SparkConfOverrides    map[string]string
	TimeoutSeconds        int
	EMRJobRunID           string
	CancellationRequested bool
	LogGroup              string
	LogStreamPrefix       string
	DriverLogURI          string
	SparkUIURI            string
	ErrorMessage          string
	StartedAt             *time.Time
	EndedAt               *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type UsageRecord struct {
	ID                     string
	TenantID               string
	RunID                  string
	VCPUSeconds            int64
	MemoryGBSeconds        int64
	EstimatedCostUSDMicros int64
	RecordedAt             time.Time
}

type AuditEvent struct {
	ID                string
	TenantID          string
	Actor             string
	Action            string
	SourceIP          string
	EntityType        string
	EntityID          string
	Details           map[string]any
	AWSRequestID      string
	CloudTrailEventID string
	CreatedAt         time.Time
}

type IdempotencyRecord struct {
	ID           string
	Scope        string
	Key          string
	Fingerprint  string
	ResponseJSON string
	StatusCode   int
	ResourceType string
	ResourceID   string
	CreatedAt    time.Time
}
