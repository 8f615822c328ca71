package v1

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akyoto/cache"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/smithy-go"
	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.opentelemetry.io/otel"
)

const (
	DefaultDefinitionRevisions = 2
	taskDefinitionCacheTTL     = 10 * time.Minute
)

var transientCodes = map[string]bool{
	"ThrottlingException":         true,
	"Throttling":                  true,
	"TooManyRequestsException":    true,
	"RequestLimitExceeded":        true,
	"ServerException":             true,
	"ServiceUnavailableException": true,
	"InternalServiceException":    true,
	"InternalFailure":             true,
	"LimitExceededException":      true,
}

// classifyError wraps throttling and server side errors with domain.ErrTransient
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) && (transientCodes[ae.ErrorCode()] || ae.ErrorFault() == smithy.FaultServer) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}

// LoadAWSConfig resolves the shared configuration of a named profile
func LoadAWSConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithSharedConfigProfile(profile),
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

// Session is the authenticated context of one scan target, shared by all its probes
type Session struct {
	Target domain.ScanTarget
	Config aws.Config
	// DescribeTaskDefinition results keyed by ARN
	taskDefinitions *cache.Cache
}

func NewSession(target domain.ScanTarget, cfg aws.Config) *Session {
	return &Session{
		Target:          target,
		Config:          cfg,
		taskDefinitions: cache.New(taskDefinitionCacheTTL),
	}
}

// TaskDefinitionImages returns the container images of a task definition, memoized per session
func (s *Session) TaskDefinitionImages(ctx context.Context, client ECSAPI, arn string) ([]string, error) {
	if images, ok := s.taskDefinitions.Get(arn); ok {
		return images.([]string), nil
	}
	out, err := client.DescribeTaskDefinition(ctx, &ecs.DescribeTaskDefinitionInput{TaskDefinition: aws.String(arn)})
	if err != nil {
		return nil, classifyError(err)
	}
	var images []string
	if out.TaskDefinition != nil {
		for _, c := range out.TaskDefinition.ContainerDefinitions {
			if c.Image != nil {
				images = append(images, *c.Image)
			}
		}
	}
	s.taskDefinitions.Set(arn, images, taskDefinitionCacheTTL)
	return images, nil
}

// records turns image URIs into usage records, dropping anything that is not a private registry reference
func (s *Session) records(kind domain.SourceKind, uris ...string) []domain.UsageRecord {
	var out []domain.UsageRecord
	for _, uri := range uris {
		if uri == "" {
			continue
		}
		ref, ok := domain.ParseImageURI(uri)
		if !ok {
			logger.L().Debug("ignoring image reference",
				helpers.String("target", s.Target.DisplayName()),
				helpers.String("image", uri))
			continue
		}
		out = append(out, domain.UsageRecord{Kind: kind, Target: s.Target.DisplayName(), Reference: ref})
	}
	return out
}

// AWSConnector implements ScanTargetConnector with shared profile credentials
type AWSConnector struct {
	definitionRevisions int
}

var _ ports.ScanTargetConnector = (*AWSConnector)(nil)

func NewAWSConnector(definitionRevisions int) *AWSConnector {
	if definitionRevisions < 1 {
		definitionRevisions = DefaultDefinitionRevisions
	}
	return &AWSConnector{definitionRevisions: definitionRevisions}
}

// Connect loads the target profile, checks that its credentials resolve and
// returns one probe per workload kind bound to the new session.
func (c *AWSConnector) Connect(ctx context.Context, target domain.ScanTarget) ([]ports.UsageProbe, error) {
	ctx, span := otel.Tracer("").Start(ctx, "AWSConnector.Connect")
	defer span.End()

	cfg, err := LoadAWSConfig(ctx, target.Profile, target.Region)
	if err != nil {
		return nil, err
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("profile %q has no credentials", target.Profile)
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, err
	}
	session := NewSession(target, cfg)
	ecsClient := ecs.NewFromConfig(cfg)
	return []ports.UsageProbe{
		NewLambdaProbe(session, lambda.NewFromConfig(cfg)),
		NewECSServiceProbe(session, ecsClient),
		NewTaskDefinitionProbe(session, ecsClient, c.definitionRevisions),
	}, nil
}
