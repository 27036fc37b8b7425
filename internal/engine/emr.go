package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/emrcontainers"
	emrtypes "github.com/aws/aws-sdk-go-v2/service/emrcontainers/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	"github.com/sparkpilot/sparkpilot/internal/pkg/logger"
)

// EMROnEKSAdapter drives EMR-on-EKS in the customer account by assuming the
// environment's customer role for every call.
type EMROnEKSAdapter struct {
	logGroupPrefix   string
	releaseLabel     string
	executionRoleARN string
}

type EMROptions struct {
	LogGroupPrefix   string
	ReleaseLabel     string
	ExecutionRoleARN string
}

func NewEMROnEKSAdapter(opts EMROptions) *EMROnEKSAdapter {
	return &EMROnEKSAdapter{
		logGroupPrefix:   opts.LogGroupPrefix,
		releaseLabel:     opts.ReleaseLabel,
		executionRoleARN: opts.ExecutionRoleARN,
	}
}

// assumedConfig builds an aws.Config whose credentials come from assuming
// the customer role in the target region.
func assumedConfig(ctx context.Context, roleARN, region string) (aws.Config, error) {
	base, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(base), roleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = "sparkpilot-" + randomHex(8)
	})
	base.Credentials = aws.NewCredentialsCache(provider)
	return base, nil
}

func eksClusterNameFromARN(clusterARN string) (string, error) {
	const marker = "cluster/"
	idx := strings.Index(clusterARN, marker)
	if idx < 0 {
		return "", fmt.Errorf("invalid EKS cluster ARN: %s", clusterARN)
	}
	return clusterARN[idx+len(marker):], nil
}

func (a *EMROnEKSAdapter) CreateVirtualCluster(ctx context.Context, env *domain.Environment) (string, error) {
	if env.EKSClusterARN == "" {
		return "", fmt.Errorf("missing EKS cluster ARN")
	}
	if env.EKSNamespace == "" {
		return "", fmt.Errorf("missing EKS namespace")
	}
	clusterName, err := eksClusterNameFromARN(env.EKSClusterARN)
	if err != nil {
		return "", err
	}
	cfg, err := assumedConfig(ctx, env.CustomerRoleARN, env.Region)
	if err != nil {
		return "", err
	}
	client := emrcontainers.NewFromConfig(cfg)
	out, err := client.CreateVirtualCluster(ctx, &emrcontainers.CreateVirtualClusterInput{
		Name:        aws.String(fmt.Sprintf("sparkpilot-%s", shortID(env.ID))),
		ClientToken: aws.String(uuid.NewString()),
		ContainerProvider: &emrtypes.ContainerProvider{
			Id:   aws.String(clusterName),
			Type: emrtypes.ContainerProviderTypeEks,
			Info: &emrtypes.ContainerInfoMemberEksInfo{
				Value: emrtypes.EksInfo{Namespace: aws.String(env.EKSNamespace)},
			},
		},
		Tags: map[string]string{"sparkpilot:managed": "true"},
	})
	if err != nil {
		return "", fmt.Errorf("create virtual cluster: %w", err)
	}
	return aws.ToString(out.Id), nil
}

func (a *EMROnEKSAdapter) StartJobRun(ctx context.Context, env *domain.Environment, job *domain.Job, run *domain.Run) (*Dispatch, error) {
	logGroup := fmt.Sprintf("%s/%s", a.logGroupPrefix, env.ID)
	streamPrefix := fmt.Sprintf("%s/attempt-%d", run.ID, run.Attempt)

	cfg, err := assumedConfig(ctx, env.CustomerRoleARN, env.Region)
	if err != nil {
		return nil, err
	}
	client := emrcontainers.NewFromConfig(cfg)

	args := run.ArgsOverrides
	if args == nil {
		args = job.Args
	}
	out, err := client.StartJobRun(ctx, &emrcontainers.StartJobRunInput{
		VirtualClusterId: aws.String(env.EMRVirtualClusterID),
		ClientToken:      aws.String(uuid.NewString()),
		Name:             aws.String(fmt.Sprintf("%s-%s", job.Name, run.ID)),
		ExecutionRoleArn: aws.String(a.executionRoleARN),
		ReleaseLabel:     aws.String(a.releaseLabel),
		JobDriver: &emrtypes.JobDriver{
			SparkSubmitJobDriver: &emrtypes.SparkSubmitJobDriver{
				EntryPoint:            aws.String(job.ArtifactURI),
				EntryPointArguments:   args,
				SparkSubmitParameters: aws.String(sparkSubmitParameters(job.SparkConf, run.SparkConfOverrides)),
			},
		},
		ConfigurationOverrides: &emrtypes.ConfigurationOverrides{
			MonitoringConfiguration: &emrtypes.MonitoringConfiguration{
				CloudWatchMonitoringConfiguration: &emrtypes.CloudWatchMonitoringConfiguration{
					LogGroupName:        aws.String(logGroup),
					LogStreamNamePrefix: aws.String(streamPrefix),
				},
			},
		},
		RetryPolicyConfiguration: &emrtypes.RetryPolicyConfiguration{
			MaxAttempts: aws.Int32(int32(job.RetryMaxAttempts)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start job run: %w", err)
	}
	requestID, _ := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata)
	return &Dispatch{
		EMRJobRunID:     aws.ToString(out.Id),
		LogGroup:        logGroup,
		LogStreamPrefix: streamPrefix,
		DriverLogURI:    fmt.Sprintf("cloudwatch://%s/%s/driver", logGroup, streamPrefix),
		AWSRequestID:    requestID,
	}, nil
}

func (a *EMROnEKSAdapter) DescribeJobRun(ctx context.Context, env *domain.Environment, run *domain.Run) (string, string, error) {
	if run.CancellationRequested {
		return domain.EngineStateCancelled, "", nil
	}
	if run.EMRJobRunID == "" {
		return domain.EngineStateFailed, "Missing EMR job id.", nil
	}
	cfg, err := assumedConfig(ctx, env.CustomerRoleARN, env.Region)
	if err != nil {
		return "", "", err
	}
	client := emrcontainers.NewFromConfig(cfg)
	out, err := client.DescribeJobRun(ctx, &emrcontainers.DescribeJobRunInput{
		VirtualClusterId: aws.String(env.EMRVirtualClusterID),
		Id:               aws.String(run.EMRJobRunID),
	})
	if err != nil {
		return domain.EngineStateFailed, err.Error(), nil
	}
	if out.JobRun == nil {
		return domain.EngineStateFailed, "", nil
	}
	state := string(out.JobRun.State)
	if state == "" {
		state = domain.EngineStateFailed
	}
	failure := aws.ToString(out.JobRun.StateDetails)
	if failure == "" && out.JobRun.FailureReason != "" {
		failure = string(out.JobRun.FailureReason)
	}
	return state, failure, nil
}

func (a *EMROnEKSAdapter) CancelJobRun(ctx context.Context, env *domain.Environment, run *domain.Run) (string, error) {
	if run.EMRJobRunID == "" {
		return "", nil
	}
	cfg, err := assumedConfig(ctx, env.CustomerRoleARN, env.Region)
	if err != nil {
		return "", err
	}
	client := emrcontainers.NewFromConfig(cfg)
	out, err := client.CancelJobRun(ctx, &emrcontainers.CancelJobRunInput{
		VirtualClusterId: aws.String(env.EMRVirtualClusterID),
		Id:               aws.String(run.EMRJobRunID),
	})
	if err != nil {
		return "", fmt.Errorf("cancel job run: %w", err)
	}
	requestID, _ := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata)
	return requestID, nil
}

func (a *EMROnEKSAdapter) FetchLogLines(ctx context.Context, roleARN, region, logGroup, logStreamPrefix string, limit int) ([]string, error) {
	if logGroup == "" {
		return []string{}, nil
	}
	cfg, err := assumedConfig(ctx, roleARN, region)
	if err != nil {
		return nil, err
	}
	client := cloudwatchlogs.NewFromConfig(cfg)
	input := &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName: aws.String(logGroup),
		Limit:        aws.Int32(int32(limit)),
	}
	if logStreamPrefix != "" {
		input.LogStreamNamePrefix = aws.String(logStreamPrefix)
	}
	out, err := client.FilterLogEvents(ctx, input)
	if err != nil {
		var notFound *cwltypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return []string{}, nil
		}
		logger.FromContext(ctx).Warn("cloudwatch log fetch failed",
			zap.String("log_group", logGroup),
			zap.String("log_stream_prefix", logStreamPrefix),
			zap.String("region", region),
			zap.Error(err),
		)
		return nil, fmt.Errorf("fetch log events: %w", err)
	}
	lines := make([]string, 0, len(out.Events))
	for _, event := range out.Events {
		lines = append(lines, aws.ToString(event.Message))
	}
	return lines, nil
}

// sparkSubmitParameters flattens job conf overlaid with run overrides into
// --conf flags, keys sorted for a stable submit string.
func sparkSubmitParameters(jobConf, overrides map[string]string) string {
	merged := make(map[string]string, len(jobConf)+len(overrides))
	for k, v := range jobConf {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("--conf %s=%s", k, merged[k]))
	}
	return strings.Join(parts, " ")
}

// shortID trims an entity id to the 8-character slug used in resource names.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
