package v1

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"go.opentelemetry.io/otel"
)

// TaskDefinitionProbe reports the images of the newest active revisions of each task definition family
type TaskDefinitionProbe struct {
	session   *Session
	client    ECSAPI
	revisions int
}

var _ ports.UsageProbe = (*TaskDefinitionProbe)(nil)

func NewTaskDefinitionProbe(session *Session, client ECSAPI, revisions int) *TaskDefinitionProbe {
	if revisions < 1 {
		revisions = DefaultDefinitionRevisions
	}
	return &TaskDefinitionProbe{session: session, client: client, revisions: revisions}
}

func (p *TaskDefinitionProbe) Kind() domain.SourceKind {
	return domain.DefinitionRevision
}

func (p *TaskDefinitionProbe) ListUsage(ctx context.Context) ([]domain.UsageRecord, error) {
	ctx, span := otel.Tracer("").Start(ctx, "TaskDefinitionProbe.ListUsage")
	defer span.End()

	var families []string
	pager := ecs.NewListTaskDefinitionFamiliesPaginator(p.client, &ecs.ListTaskDefinitionFamiliesInput{
		Status: types.TaskDefinitionFamilyStatusActive,
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classifyError(err)
		}
		families = append(families, page.Families...)
	}

	var records []domain.UsageRecord
	for _, family := range families {
		arns, err := p.latest(ctx, family)
		if err != nil {
			return nil, err
		}
		for _, arn := range arns {
			images, err := p.session.TaskDefinitionImages(ctx, p.client, arn)
			if err != nil {
				return nil, err
			}
			records = append(records, p.session.records(p.Kind(), images...)...)
		}
	}
	return records, nil
}

// latest returns the newest active revisions of family, newest first. The
// family filter is a prefix match, so revisions of longer family names are skipped.
func (p *TaskDefinitionProbe) latest(ctx context.Context, family string) ([]string, error) {
	var arns []string
	pager := ecs.NewListTaskDefinitionsPaginator(p.client, &ecs.ListTaskDefinitionsInput{
		FamilyPrefix: aws.String(family),
		Status:       types.TaskDefinitionStatusActive,
		Sort:         types.SortOrderDesc,
	})
	for pager.HasMorePages() && len(arns) < p.revisions {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classifyError(err)
		}
		for _, arn := range page.TaskDefinitionArns {
			if taskDefinitionFamily(arn) != family {
				continue
			}
			arns = append(arns, arn)
			if len(arns) == p.revisions {
				break
			}
		}
	}
	return arns, nil
}

// taskDefinitionFamily extracts the family from arn:aws:ecs:region:account:task-definition/family:revision
func taskDefinitionFamily(arn string) string {
	_, rest, ok := strings.Cut(arn, "task-definition/")
	if !ok {
		return ""
	}
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		return rest[:i]
	}
	return rest
}
