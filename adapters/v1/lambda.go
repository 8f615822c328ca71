package v1

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"go.opentelemetry.io/otel"
)

// LambdaAPI is the subset of the Lambda client used by LambdaProbe
type LambdaAPI interface {
	ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
}

// LambdaProbe reports the images of container packaged functions
type LambdaProbe struct {
	session *Session
	client  LambdaAPI
}

var _ ports.UsageProbe = (*LambdaProbe)(nil)

func NewLambdaProbe(session *Session, client LambdaAPI) *LambdaProbe {
	return &LambdaProbe{session: session, client: client}
}

func (p *LambdaProbe) Kind() domain.SourceKind {
	return domain.ComputeFunction
}

// ListUsage records both the configured and the resolved image of every image function
func (p *LambdaProbe) ListUsage(ctx context.Context) ([]domain.UsageRecord, error) {
	ctx, span := otel.Tracer("").Start(ctx, "LambdaProbe.ListUsage")
	defer span.End()

	var records []domain.UsageRecord
	pager := lambda.NewListFunctionsPaginator(p.client, &lambda.ListFunctionsInput{})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classifyError(err)
		}
		for _, fn := range page.Functions {
			if fn.PackageType != types.PackageTypeImage {
				continue
			}
			out, err := p.client.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: fn.FunctionArn})
			if err != nil {
				return nil, classifyError(err)
			}
			if out.Code == nil {
				continue
			}
			var uris []string
			if out.Code.ImageUri != nil {
				uris = append(uris, *out.Code.ImageUri)
			}
			if out.Code.ResolvedImageUri != nil {
				uris = append(uris, *out.Code.ResolvedImageUri)
			}
			records = append(records, p.session.records(p.Kind(), uris...)...)
		}
	}
	return records, nil
}
