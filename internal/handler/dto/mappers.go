package dto

import (
	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r TenantCreateRequest) Input() service.CreateTenantInput {
	return service.CreateTenantInput{Name: r.Name}
}

func (r EnvironmentCreateRequest) Input() service.CreateEnvironmentInput {
	input := service.CreateEnvironmentInput{
		TenantID:         r.TenantID,
		ProvisioningMode: r.ProvisioningMode,
		Region:           r.Region,
		CustomerRoleARN:  r.CustomerRoleARN,
		EKSClusterARN:    r.EKSClusterARN,
		EKSNamespace:     r.EKSNamespace,
		WarmPoolEnabled:  r.WarmPoolEnabled,
	}
	if r.Quotas != nil {
		if r.Quotas.MaxConcurrentRuns != nil {
			input.Quotas.MaxConcurrentRuns = *r.Quotas.MaxConcurrentRuns
		}
		if r.Quotas.MaxVCPU != nil {
			input.Quotas.MaxVCPU = *r.Quotas.MaxVCPU
		}
		if r.Quotas.MaxRunSeconds != nil {
			input.Quotas.MaxRunSeconds = *r.Quotas.MaxRunSeconds
		}
	}
	return input
}

func (r JobCreateRequest) Input() service.CreateJobInput {
	return service.CreateJobInput{
		EnvironmentID:    r.EnvironmentID,
		Name:             r.Name,
		ArtifactURI:      r.ArtifactURI,
		ArtifactDigest:   r.ArtifactDigest,
		Entrypoint:       r.Entrypoint,
		Args:             r.Args,
		SparkConf:        r.SparkConf,
		RetryMaxAttempts: r.RetryMaxAttempts,
		TimeoutSeconds:   r.TimeoutSeconds,
	}
}

func (r RunCreateRequest) Input() service.CreateRunInput {
	input := service.CreateRunInput{
		Args:           r.Args,
		SparkConf:      r.SparkConf,
		TimeoutSeconds: r.TimeoutSeconds,
	}
	resources := domain.RequestedResources{ExecutorInstances: 2}
	if r.RequestedResources != nil {
		resources.DriverVCPU = r.RequestedResources.DriverVCPU
		resources.DriverMemoryGB = r.RequestedResources.DriverMemoryGB
		resources.ExecutorVCPU = r.RequestedResources.ExecutorVCPU
		resources.ExecutorMemoryGB = r.RequestedResources.ExecutorMemoryGB
		if r.RequestedResources.ExecutorInstances != nil {
			resources.ExecutorInstances = *r.RequestedResources.ExecutorInstances
		}
	}
	input.RequestedResources = resources
	return input
}

func FromTenant(t *domain.Tenant) TenantResponse {
	return TenantResponse{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt}
}

func FromEnvironment(e *domain.Environment) EnvironmentResponse {
	return EnvironmentResponse{
		ID:                  e.ID,
		TenantID:            e.TenantID,
		Cloud:               e.Cloud,
		Region:              e.Region,
		Engine:              e.Engine,
		ProvisioningMode:    e.ProvisioningMode,
		Status:              e.Status,
		CustomerRoleARN:     e.CustomerRoleARN,
		EKSClusterARN:       optString(e.EKSClusterARN),
		EKSNamespace:        optString(e.EKSNamespace),
		EMRVirtualClusterID: optString(e.EMRVirtualClusterID),
		WarmPoolEnabled:     e.WarmPoolEnabled,
		MaxConcurrentRuns:   e.MaxConcurrentRuns,
		MaxVCPU:             e.MaxVCPU,
		MaxRunSeconds:       e.MaxRunSeconds,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
}

func FromEnvironments(envs []*domain.Environment) []EnvironmentResponse {
	out := make([]EnvironmentResponse, 0, len(envs))
	for _, env := range envs {
		out = append(out, FromEnvironment(env))
	}
	return out
}

func FromOperation(op *domain.ProvisioningOperation) ProvisioningOperationResponse {
	return ProvisioningOperationResponse{
		ID:            op.ID,
		EnvironmentID: op.EnvironmentID,
		State:         op.State,
		Step:          op.Step,
		StartedAt:     op.StartedAt,
		EndedAt:       op.EndedAt,
		Message:       optString(op.Message),
		LogsURI:       optString(op.LogsURI),
		CreatedAt:     op.CreatedAt,
		UpdatedAt:     op.UpdatedAt,
	}
}

func FromJob(j *domain.Job) JobResponse {
	args := j.Args
	if args == nil {
		args = []string{}
	}
	conf := j.SparkConf
	if conf == nil {
		conf = map[string]string{}
	}
	return JobResponse{
		ID:               j.ID,
		EnvironmentID:    j.EnvironmentID,
		Name:             j.Name,
		ArtifactURI:      j.ArtifactURI,
		ArtifactDigest:   j.ArtifactDigest,
		Entrypoint:       j.Entrypoint,
		Args:             args,
		SparkConf:        conf,
		RetryMaxAttempts: j.RetryMaxAttempts,
		TimeoutSeconds:   j.TimeoutSeconds,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

func FromRun(r *domain.Run) RunResponse {
	args := r.ArgsOverrides
	if args == nil {
		args = []string{}
	}
	conf := r.SparkConfOverrides
	if conf == nil {
		conf = map[string]string{}
	}
	return RunResponse{
		ID:            r.ID,
		JobID:         r.JobID,
		EnvironmentID: r.EnvironmentID,
		State:         r.State,
		Attempt:       r.Attempt,
		RequestedResources: RequestedResourcesBody{
			DriverVCPU:        r.RequestedResources.DriverVCPU,
			DriverMemoryGB:    r.RequestedResources.DriverMemoryGB,
			ExecutorVCPU:      r.RequestedResources.ExecutorVCPU,
			ExecutorMemoryGB:  r.RequestedResources.ExecutorMemoryGB,
			ExecutorInstances: r.RequestedResources.ExecutorInstances,
		},
		Args:                  args,
		SparkConf:             conf,
		TimeoutSeconds:        r.TimeoutSeconds,
		EMRJobRunID:           optString(r.EMRJobRunID),
		CancellationRequested: r.CancellationRequested,
		LogGroup:              optString(r.LogGroup),
		LogStreamPrefix:       optString(r.LogStreamPrefix),
		DriverLogURI:          optString(r.DriverLogURI),
		SparkUIURI:            optString(r.SparkUIURI),
		ErrorMessage:          optString(r.ErrorMessage),
		StartedAt:             r.StartedAt,
		EndedAt:               r.EndedAt,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

func FromRuns(runs []*domain.Run) []RunResponse {
	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

func FromRunLogs(logs *service.RunLogs) LogsResponse {
	lines := logs.Lines
	if lines == nil {
		lines = []string{}
	}
	return LogsResponse{
		RunID:           logs.Run.ID,
		LogGroup:        optString(logs.Run.LogGroup),
		LogStreamPrefix: optString(logs.Run.LogStreamPrefix),
		Lines:           lines,
	}
}

func FromUsageReport(report *service.UsageReport) UsageResponse {
	items := make([]UsageItem, 0, len(report.Items))
	for _, item := range report.Items {
		items = append(items, UsageItem{
			RunID:                  item.RunID,
			VCPUSeconds:            item.VCPUSeconds,
			MemoryGBSeconds:        item.MemoryGBSeconds,
			EstimatedCostUSDMicros: item.EstimatedCostUSDMicros,
			RecordedAt:             item.RecordedAt,
		})
	}
	return UsageResponse{
		TenantID: report.TenantID,
		FromTS:   report.From,
		ToTS:     report.To,
		Items:    items,
	}
}
