// Package dto defines the wire types of the REST surface and the mappers
// between them and the domain entities.
package dto

import "time"

type TenantCreateRequest struct {
	Name string `json:"name"`
}

type TenantResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type EnvironmentQuotas struct {
	MaxConcurrentRuns *int `json:"max_concurrent_runs,omitempty"`
	MaxVCPU           *int `json:"max_vcpu,omitempty"`
	MaxRunSeconds     *int `json:"max_run_seconds,omitempty"`
}

type EnvironmentCreateRequest struct {
	TenantID         string             `json:"tenant_id"`
	ProvisioningMode string             `json:"provisioning_mode"`
	Region           string             `json:"region"`
	CustomerRoleARN  string             `json:"customer_role_arn"`
	EKSClusterARN    string             `json:"eks_cluster_arn"`
	EKSNamespace     string             `json:"eks_namespace"`
	WarmPoolEnabled  bool               `json:"warm_pool_enabled"`
	Quotas           *EnvironmentQuotas `json:"quotas,omitempty"`
}

type EnvironmentResponse struct {
	ID                  string    `json:"id"`
	TenantID            string    `json:"tenant_id"`
	Cloud               string    `json:"cloud"`
	Region              string    `json:"region"`
	Engine              string    `json:"engine"`
	ProvisioningMode    string    `json:"provisioning_mode"`
	Status              string    `json:"status"`
	CustomerRoleARN     string    `json:"customer_role_arn"`
	EKSClusterARN       *string   `json:"eks_cluster_arn"`
	EKSNamespace        *string   `json:"eks_namespace"`
	EMRVirtualClusterID *string   `json:"emr_virtual_cluster_id"`
	WarmPoolEnabled     bool      `json:"warm_pool_enabled"`
	MaxConcurrentRuns   int       `json:"max_concurrent_runs"`
	MaxVCPU             int       `json:"max_vcpu"`
	MaxRunSeconds       int       `json:"max_run_seconds"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type ProvisioningOperationResponse struct {
	ID            string     `json:"id"`
	EnvironmentID string     `json:"environment_id"`
	State         string     `json:"state"`
	Step          string     `json:"step"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`
	Message       *string    `json:"message"`
	LogsURI       *string    `json:"logs_uri"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type JobCreateRequest struct {
	EnvironmentID    string            `json:"environment_id"`
	Name             string            `json:"name"`
	ArtifactURI      string            `json:"artifact_uri"`
	ArtifactDigest   string            `json:"artifact_digest"`
	Entrypoint       string            `json:"entrypoint"`
	Args             []string          `json:"args"`
	SparkConf        map[string]string `json:"spark_conf"`
	RetryMaxAttempts int               `json:"retry_max_attempts"`
	TimeoutSeconds   int               `json:"timeout_seconds"`
}

type JobResponse struct {
	ID               string            `json:"id"`
	EnvironmentID    string            `json:"environment_id"`
	Name             string            `json:"name"`
	ArtifactURI      string            `json:"artifact_uri"`
	ArtifactDigest   string            `json:"artifact_digest"`
	Entrypoint       string            `json:"entrypoint"`
	Args             []string          `json:"args"`
	SparkConf        map[string]string `json:"spark_conf"`
	RetryMaxAttempts int               `json:"retry_max_attempts"`
	TimeoutSeconds   int               `json:"timeout_seconds"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type RequestedResources struct {
	DriverVCPU       int  `json:"driver_vcpu"`
	DriverMemoryGB   int  `json:"driver_memory_gb"`
	ExecutorVCPU     int  `json:"executor_vcpu"`
	ExecutorMemoryGB int  `json:"executor_memory_gb"`
	// nil means the default of 2; zero is a legal driver-only request.
	ExecutorInstances *int `json:"executor_instances,omitempty"`
}

type RunCreateRequest struct {
	Args               []string            `json:"args"`
	SparkConf          map[string]string   `json:"spark_conf"`
	RequestedResources *RequestedResources `json:"requested_resources,omitempty"`
	TimeoutSeconds     int                 `json:"timeout_seconds"`
}

type RunResponse struct {
	ID                    string                 `json:"id"`
	JobID                 string                 `json:"job_id"`
	EnvironmentID         string                 `json:"environment_id"`
	State                 string                 `json:"state"`
	Attempt               int                    `json:"attempt"`
	RequestedResources    RequestedResourcesBody `json:"requested_resources"`
	Args                  []string               `json:"args"`
	SparkConf             map[string]string      `json:"spark_conf"`
	TimeoutSeconds        int                    `json:"timeout_seconds"`
	EMRJobRunID           *string                `json:"emr_job_run_id"`
	CancellationRequested bool                   `json:"cancellation_requested"`
	LogGroup              *string                `json:"log_group"`
	LogStreamPrefix       *string                `json:"log_stream_prefix"`
	DriverLogURI          *string                `json:"driver_log_uri"`
	SparkUIURI            *string                `json:"spark_ui_uri"`
	ErrorMessage          *string                `json:"error_message"`
	StartedAt             *time.Time             `json:"started_at"`
	EndedAt               *time.Time             `json:"ended_at"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// RequestedResourcesBody is the response-side shape, all fields resolved.
type RequestedResourcesBody struct {
	DriverVCPU        int `json:"driver_vcpu"`
	DriverMemoryGB    int `json:"driver_memory_gb"`
	ExecutorVCPU      int `json:"executor_vcpu"`
	ExecutorMemoryGB  int `json:"executor_memory_gb"`
	ExecutorInstances int `json:"executor_instances"`
}

type LogsResponse struct {
	RunID           string   `json:"run_id"`
	LogGroup        *string  `json:"log_group"`
	LogStreamPrefix *string  `json:"log_stream_prefix"`
	Lines           []string `json:"lines"`
}

type UsageItem struct {
	RunID                  string    `json:"run_id"`
	VCPUSeconds            int64     `json:"vcpu_seconds"`
	MemoryGBSeconds        int64     `json:"memory_gb_seconds"`
	EstimatedCostUSDMicros int64     `json:"estimated_cost_usd_micros"`
	RecordedAt             time.Time `json:"recorded_at"`
}

type UsageResponse struct {
	TenantID string      `json:"tenant_id"`
	FromTS   time.Time   `json:"from_ts"`
	ToTS     time.Time   `json:"to_ts"`
	Items    []UsageItem `json:"items"`
}
