package v1

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"go.opentelemetry.io/otel"
)

// describeServicesLimit is the DescribeServices limit on services per call
const describeServicesLimit = 10

// ECSAPI is the subset of the ECS client used by the service and task definition probes
type ECSAPI interface {
	ListClusters(ctx context.Context, params *ecs.ListClustersInput, optFns ...func(*ecs.Options)) (*ecs.ListClustersOutput, error)
	ListServices(ctx context.Context, params *ecs.ListServicesInput, optFns ...func(*ecs.Options)) (*ecs.ListServicesOutput, error)
	DescribeServices(ctx context.Context, params *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
	DescribeTaskDefinition(ctx context.Context, params *ecs.DescribeTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error)
	ListTaskDefinitionFamilies(ctx context.Context, params *ecs.ListTaskDefinitionFamiliesInput, optFns ...func(*ecs.Options)) (*ecs.ListTaskDefinitionFamiliesOutput, error)
	ListTaskDefinitions(ctx context.Context, params *ecs.ListTaskDefinitionsInput, optFns ...func(*ecs.Options)) (*ecs.ListTaskDefinitionsOutput, error)
}

// ECSServiceProbe reports the images of every deployment of every service in every cluster
type ECSServiceProbe struct {
	session *Session
	client  ECSAPI
}

var _ ports.UsageProbe = (*ECSServiceProbe)(nil)

func NewECSServiceProbe(session *Session, client ECSAPI) *ECSServiceProbe {
	return &ECSServiceProbe{session: session, client: client}
}

func (p *ECSServiceProbe) Kind() domain.SourceKind {
	return domain.Service
}

func (p *ECSServiceProbe) ListUsage(ctx context.Context) ([]domain.UsageRecord, error) {
	ctx, span := otel.Tracer("").Start(ctx, "ECSServiceProbe.ListUsage")
	defer span.End()

	clusters, err := p.clusters(ctx)
	if err != nil {
		return nil, err
	}
	// deployments of the same service usually share task definitions
	definitions := mapset.NewThreadUnsafeSet[string]()
	var ordered []string
	for _, cluster := range clusters {
		arns, err := p.taskDefinitions(ctx, cluster)
		if err != nil {
			return nil, err
		}
		for _, arn := range arns {
			if definitions.Add(arn) {
				ordered = append(ordered, arn)
			}
		}
	}
	var records []domain.UsageRecord
	for _, arn := range ordered {
		images, err := p.session.TaskDefinitionImages(ctx, p.client, arn)
		if err != nil {
			return nil, err
		}
		records = append(records, p.session.records(p.Kind(), images...)...)
	}
	return records, nil
}

func (p *ECSServiceProbe) clusters(ctx context.Context) ([]string, error) {
	var clusters []string
	pager := ecs.NewListClustersPaginator(p.client, &ecs.ListClustersInput{})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classifyError(err)
		}
		clusters = append(clusters, page.ClusterArns...)
	}
	return clusters, nil
}

// taskDefinitions returns the task definitions of the primary and every other deployment of each service
func (p *ECSServiceProbe) taskDefinitions(ctx context.Context, cluster string) ([]string, error) {
	var services []string
	pager := ecs.NewListServicesPaginator(p.client, &ecs.ListServicesInput{Cluster: aws.String(cluster)})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classifyError(err)
		}
		services = append(services, page.ServiceArns...)
	}
	var arns []string
	for start := 0; start < len(services); start += describeServicesLimit {
		end := min(start+describeServicesLimit, len(services))
		out, err := p.client.DescribeServices(ctx, &ecs.DescribeServicesInput{
			Cluster:  aws.String(cluster),
			Services: services[start:end],
		})
		if err != nil {
			return nil, classifyError(err)
		}
		for _, svc := range out.Services {
			if svc.TaskDefinition != nil {
				arns = append(arns, *svc.TaskDefinition)
			}
			for _, d := range svc.Deployments {
				if d.TaskDefinition != nil {
					arns = append(arns, *d.TaskDefinition)
				}
			}
		}
	}
	return arns, nil
}
