package service

import (
	"context"
	"sync"
	"time"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/engine"
)

// memStore backs the in-memory repository fakes used across the service
// tests. Insertion order stands in for created_at ordering.
type memStore struct {
	mu sync.Mutex

	tenants  map[string]*domain.Tenant
	envs     map[string]*domain.Environment
	ops      map[string]*domain.ProvisioningOperation
	opOrder  []string
	jobs     map[string]*domain.Job
	runs     map[string]*domain.Run
	runOrder []string
	usage    map[string]*domain.UsageRecord
	idem     map[string]*domain.IdempotencyRecord
	audits   []*domain.AuditEvent

	clock time.Time
}

func newMemStore() *memStore {
	return &memStore{
		tenants: make(map[string]*domain.Tenant),
		envs:    make(map[string]*domain.Environment),
		ops:     make(map[string]*domain.ProvisioningOperation),
		jobs:    make(map[string]*domain.Job),
		runs:    make(map[string]*domain.Run),
		usage:   make(map[string]*domain.UsageRecord),
		idem:    make(map[string]*domain.IdempotencyRecord),
		clock:   time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, 0, len(s.audits))
	for _, event := range s.audits {
		actions = append(actions, event.Action)
	}
	return actions
}

type noopTx struct{}

func (noopTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memTenantRepo struct{ s *memStore }

func (r *memTenantRepo) Insert(_ context.Context, tenant *domain.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.tick()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	r.s.tenants[tenant.ID] = tenant
	return nil
}

func (r *memTenantRepo) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.tenants[id], nil
}

func (r *memTenantRepo) GetByName(_ context.Context, name string) (*domain.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, tenant := range r.s.tenants {
		if tenant.Name == name {
			return tenant, nil
		}
	}
	return nil, nil
}

type memEnvironmentRepo struct{ s *memStore }

func (r *memEnvironmentRepo) Insert(_ context.Context, env *domain.Environment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.tick()
	env.CreatedAt = now
	env.UpdatedAt = now
	r.s.envs[env.ID] = env
	return nil
}

func (r *memEnvironmentRepo) GetByID(_ context.Context, id string) (*domain.Environment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.envs[id], nil
}

func (r *memEnvironmentRepo) List(_ context.Context, tenantID string) ([]*domain.Environment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Environment
	for _, env := range r.s.envs {
		if tenantID == "" || env.TenantID == tenantID {
			out = append(out, env)
		}
	}
	return out, nil
}

func (r *memEnvironmentRepo) Update(_ context.Context, env *domain.Environment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	env.UpdatedAt = r.s.tick()
	r.s.envs[env.ID] = env
	return nil
}

type memProvisioningRepo struct{ s *memStore }

func (r *memProvisioningRepo) Insert(_ context.Context, op *domain.ProvisioningOperation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.tick()
	op.CreatedAt = now
	op.UpdatedAt = now
	r.s.ops[op.ID] = op
	r.s.opOrder = append(r.s.opOrder, op.ID)
	return nil
}

func (r *memProvisioningRepo) GetByID(_ context.Context, id string) (*domain.ProvisioningOperation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.ops[id], nil
}

func (r *memProvisioningRepo) ListPending(_ context.Context) ([]*domain.ProvisioningOperation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.ProvisioningOperation
	for _, id := range r.s.opOrder {
		if op := r.s.ops[id]; op != nil && !op.Terminal() {
			out = append(out, op)
		}
	}
	return out, nil
}

func (r *memProvisioningRepo) Update(_ context.Context, op *domain.ProvisioningOperation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	op.UpdatedAt = r.s.tick()
	r.s.ops[op.ID] = op
	return nil
}

type memJobRepo struct{ s *memStore }

func (r *memJobRepo) Insert(_ context.Context, job *domain.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.tick()
	job.CreatedAt = now
	job.UpdatedAt = now
	r.s.jobs[job.ID] = job
	return nil
}

func (r *memJobRepo) GetByID(_ context.Context, id string) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.jobs[id], nil
}

type memRunRepo struct{ s *memStore }

func (r *memRunRepo) Insert(_ context.Context, run *domain.Run) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.tick()
	run.CreatedAt = now
	run.UpdatedAt = now
	r.s.runs[run.ID] = run
	r.s.runOrder = append(r.s.runOrder, run.ID)
	return nil
}

func (r *memRunRepo) GetByID(_ context.Context, id string) (*domain.Run, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.runs[id], nil
}

func (r *memRunRepo) GetByJobAndKey(_ context.Context, jobID, idempotencyKey string) (*domain.Run, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.runOrder {
		run := r.s.runs[id]
		if run.JobID == jobID && run.IdempotencyKey == idempotencyKey {
			return run, nil
		}
	}
	return nil, nil
}

func (r *memRunRepo) List(_ context.Context, tenantID, state string) ([]*domain.Run, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Run
	for _, id := range r.s.runOrder {
		run := r.s.runs[id]
		if state != "" && run.State != state {
			continue
		}
		if tenantID != "" {
			env := r.s.envs[run.EnvironmentID]
			if env == nil || env.TenantID != tenantID {
				continue
			}
		}
		out = append(out, run)
	}
	return out, nil
}

func (r *memRunRepo) ListActiveByEnvironment(_ context.Context, environmentID string) ([]*domain.Run, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Run
	for _, id := range r.s.runOrder {
		run := r.s.runs[id]
		if run.EnvironmentID != environmentID {
			continue
		}
		for _, state := range domain.ActiveRunStates {
			if run.State == state {
				out = append(out, run)
				break
			}
		}
	}
	return out, nil
}

func (r *memRunRepo) ListQueued(_ context.Context, limit int) ([]*domain.Run, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Run
	for _, id := range r.s.runOrder {
		if run := r.s.runs[id]; run.State == domain.RunStateQueued {
			out = append(out, run)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memRunRepo) ListEngineActive(_ context.Context, limit int) ([]*domain.Run, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Run
	for _, id := range r.s.runOrder {
		run := r.s.runs[id]
		if run.State == domain.RunStateAccepted || run.State == domain.RunStateRunning {
			out = append(out, run)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memRunRepo) Update(_ context.Context, run *domain.Run) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	run.UpdatedAt = r.s.tick()
	r.s.runs[run.ID] = run
	return nil
}

type memUsageRepo struct{ s *memStore }

func (r *memUsageRepo) Insert(_ context.Context, record *domain.UsageRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	record.RecordedAt = r.s.tick()
	r.s.usage[record.RunID] = record
	return nil
}

func (r *memUsageRepo) GetByRunID(_ context.Context, runID string) (*domain.UsageRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.usage[runID], nil
}

func (r *memUsageRepo) ListByTenant(_ context.Context, tenantID string, from, to time.Time) ([]*domain.UsageRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.UsageRecord
	for _, record := range r.s.usage {
		if record.TenantID != tenantID {
			continue
		}
		if record.RecordedAt.Before(from) || record.RecordedAt.After(to) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

type memAuditRepo struct{ s *memStore }

func (r *memAuditRepo) Insert(_ context.Context, event *domain.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	event.CreatedAt = r.s.tick()
	r.s.audits = append(r.s.audits, event)
	return nil
}

type memIdempotencyRepo struct{ s *memStore }

func (r *memIdempotencyRepo) GetByScopeAndKey(_ context.Context, scope, key string) (*domain.IdempotencyRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.idem[scope+"|"+key], nil
}

func (r *memIdempotencyRepo) Insert(_ context.Context, record *domain.IdempotencyRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	record.CreatedAt = r.s.tick()
	r.s.idem[record.Scope+"|"+record.Key] = record
	return nil
}

// fakeAdapter is a scriptable engine.Adapter. Unset hooks fall back to
// deterministic defaults.
type fakeAdapter struct {
	createVCFn func(ctx context.Context, env *domain.Environment) (string, error)
	startFn    func(ctx context.Context, env *domain.Environment, job *domain.Job, run *domain.Run) (*engine.Dispatch, error)
	describeFn func(ctx context.Context, env *domain.Environment, run *domain.Run) (string, string, error)
	cancelFn   func(ctx context.Context, env *domain.Environment, run *domain.Run) (string, error)
	fetchFn    func(ctx context.Context, roleARN, region, logGroup, logStreamPrefix string, limit int) ([]string, error)

	cancelCalls int
}

func (a *fakeAdapter) CreateVirtualCluster(ctx context.Context, env *domain.Environment) (string, error) {
	if a.createVCFn != nil {
		return a.createVCFn(ctx, env)
	}
	return "vc-test000001", nil
}

func (a *fakeAdapter) StartJobRun(ctx context.Context, env *domain.Environment, job *domain.Job, run *domain.Run) (*engine.Dispatch, error) {
	if a.startFn != nil {
		return a.startFn(ctx, env, job, run)
	}
	return &engine.Dispatch{
		EMRJobRunID:     "jr-test00000001",
		LogGroup:        "/sparkpilot/runs/" + env.ID,
		LogStreamPrefix: run.ID + "/attempt-1",
		DriverLogURI:    "cloudwatch://test/driver",
		SparkUIURI:      "https://sparkhistory.local/" + run.ID,
		AWSRequestID:    "req-1",
	}, nil
}

func (a *fakeAdapter) DescribeJobRun(ctx context.Context, env *domain.Environment, run *domain.Run) (string, string, error) {
	if a.describeFn != nil {
		return a.describeFn(ctx, env, run)
	}
	return domain.EngineStateRunning, "", nil
}

func (a *fakeAdapter) CancelJobRun(ctx context.Context, env *domain.Environment, run *domain.Run) (string, error) {
	a.cancelCalls++
	if a.cancelFn != nil {
		return a.cancelFn(ctx, env, run)
	}
	return "req-cancel", nil
}

func (a *fakeAdapter) FetchLogLines(ctx context.Context, roleARN, region, logGroup, logStreamPrefix string, limit int) ([]string, error) {
	if a.fetchFn != nil {
		return a.fetchFn(ctx, roleARN, region, logGroup, logStreamPrefix, limit)
	}
	return []string{"line-1", "line-2"}, nil
}

// fixture helpers

func seedTenant(s *memStore, id, name string) *domain.Tenant {
	tenant := &domain.Tenant{ID: id, Name: name, CreatedAt: s.tick(), UpdatedAt: s.clock}
	s.tenants[id] = tenant
	return tenant
}

func seedReadyEnvironment(s *memStore, id, tenantID string) *domain.Environment {
	env := &domain.Environment{
		ID:                  id,
		TenantID:            tenantID,
		Cloud:               "aws",
		Region:              "us-east-1",
		Engine:              "emr_on_eks",
		ProvisioningMode:    domain.ProvisioningModeFull,
		Status:              domain.EnvironmentStatusReady,
		CustomerRoleARN:     "arn:aws:iam::123456789012:role/SparkPilotCustomer",
		EMRVirtualClusterID: "vc-ready000001",
		MaxConcurrentRuns:   5,
		MaxVCPU:             128,
		MaxRunSeconds:       7200,
		CreatedAt:           s.tick(),
		UpdatedAt:           s.clock,
	}
	s.envs[id] = env
	return env
}

func seedJob(s *memStore, id, envID string) *domain.Job {
	job := &domain.Job{
		ID:               id,
		EnvironmentID:    envID,
		Name:             "wordcount",
		ArtifactURI:      "s3://artifacts/wordcount.py",
		ArtifactDigest:   "sha256:abcdef",
		Entrypoint:       "wordcount.py",
		Args:             []string{"--input", "s3://data/in"},
		SparkConf:        map[string]string{"spark.executor.memory": "8g"},
		RetryMaxAttempts: 1,
		TimeoutSeconds:   7200,
		CreatedAt:        s.tick(),
		UpdatedAt:        s.clock,
	}
	s.jobs[id] = job
	return job
}

func seedRun(s *memStore, id, jobID, envID, state string) *domain.Run {
	run := &domain.Run{
		ID:             id,
		JobID:          jobID,
		EnvironmentID:  envID,
		State:          state,
		Attempt:        1,
		IdempotencyKey: "seed-" + id,
		RequestedResources: domain.RequestedResources{
			DriverVCPU:        1,
			DriverMemoryGB:    4,
			ExecutorVCPU:      2,
			ExecutorMemoryGB:  8,
			ExecutorInstances: 2,
		},
		TimeoutSeconds: 7200,
		CreatedAt:      s.tick(),
		UpdatedAt:      s.clock,
	}
	s.runs[id] = run
	s.runOrder = append(s.runOrder, id)
	return run
}
