package v1

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.opentelemetry.io/otel"
)

// MaxECRBatchSize is the BatchDeleteImage limit on image ids per call
const MaxECRBatchSize = 100

// ECRAPI is the subset of the ECR client used by ECRAdapter
type ECRAPI interface {
	DescribeRegistry(ctx context.Context, params *ecr.DescribeRegistryInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRegistryOutput, error)
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
	BatchDeleteImage(ctx context.Context, params *ecr.BatchDeleteImageInput, optFns ...func(*ecr.Options)) (*ecr.BatchDeleteImageOutput, error)
}

// ECRAdapter implements CatalogReader and ImageDeleter on top of Amazon ECR
type ECRAdapter struct {
	client   ECRAPI
	identity domain.RegistryIdentity
}

var _ ports.CatalogReader = (*ECRAdapter)(nil)

var _ ports.ImageDeleter = (*ECRAdapter)(nil)

// NewECRAdapter opens a session with the registry profile and resolves the registry account.
// Failures are authentication errors.
func NewECRAdapter(ctx context.Context, registry domain.Registry) (*ECRAdapter, error) {
	ctx, span := otel.Tracer("").Start(ctx, "NewECRAdapter")
	defer span.End()

	cfg, err := LoadAWSConfig(ctx, registry.Profile, registry.Region)
	if err != nil {
		return nil, &domain.AuthenticationError{Target: registry.Name, Err: err}
	}
	client := ecr.NewFromConfig(cfg)
	out, err := client.DescribeRegistry(ctx, &ecr.DescribeRegistryInput{})
	if err != nil {
		return nil, &domain.AuthenticationError{Target: registry.Name, Err: err}
	}
	identity := domain.RegistryIdentity{AccountID: aws.ToString(out.RegistryId), Region: cfg.Region}
	logger.L().Debug("registry resolved",
		helpers.String("registry", registry.Name),
		helpers.String("account", identity.AccountID),
		helpers.String("region", identity.Region))
	return NewECRAdapterWithClient(client, identity), nil
}

func NewECRAdapterWithClient(client ECRAPI, identity domain.RegistryIdentity) *ECRAdapter {
	return &ECRAdapter{client: client, identity: identity}
}

func (e *ECRAdapter) Identity() domain.RegistryIdentity {
	return e.identity
}

func (e *ECRAdapter) MaxBatchSize() int {
	return MaxECRBatchSize
}

// ListRepositories returns the names of every repository in the registry
func (e *ECRAdapter) ListRepositories(ctx context.Context) ([]string, error) {
	ctx, span := otel.Tracer("").Start(ctx, "ECRAdapter.ListRepositories")
	defer span.End()

	var names []string
	p := ecr.NewDescribeRepositoriesPaginator(e.client, &ecr.DescribeRepositoriesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classifyError(err)
		}
		for _, r := range page.Repositories {
			names = append(names, aws.ToString(r.RepositoryName))
		}
	}
	return names, nil
}

// ListImages returns every image of a repository, in registry order
func (e *ECRAdapter) ListImages(ctx context.Context, repository string) ([]domain.Image, error) {
	ctx, span := otel.Tracer("").Start(ctx, "ECRAdapter.ListImages")
	defer span.End()

	var images []domain.Image
	p := ecr.NewDescribeImagesPaginator(e.client, &ecr.DescribeImagesInput{RepositoryName: aws.String(repository)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classifyError(err)
		}
		for _, d := range page.ImageDetails {
			img := domain.Image{
				ID:   domain.ImageID{Repository: repository, Digest: aws.ToString(d.ImageDigest)},
				Tags: d.ImageTags,
			}
			if d.ImagePushedAt != nil {
				img.PushedAt = d.ImagePushedAt.UTC()
			}
			images = append(images, img)
		}
	}
	return images, nil
}

// DeleteImages removes up to MaxECRBatchSize images by digest in one call
func (e *ECRAdapter) DeleteImages(ctx context.Context, repository string, ids []domain.ImageID) ([]domain.ImageFailure, error) {
	ctx, span := otel.Tracer("").Start(ctx, "ECRAdapter.DeleteImages")
	defer span.End()

	if len(ids) > MaxECRBatchSize {
		return nil, fmt.Errorf("batch of %d images exceeds the limit of %d", len(ids), MaxECRBatchSize)
	}
	imageIDs := make([]types.ImageIdentifier, len(ids))
	for i, id := range ids {
		imageIDs[i] = types.ImageIdentifier{ImageDigest: aws.String(id.Digest)}
	}
	out, err := e.client.BatchDeleteImage(ctx, &ecr.BatchDeleteImageInput{
		RepositoryName: aws.String(repository),
		ImageIds:       imageIDs,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	var failures []domain.ImageFailure
	for _, f := range out.Failures {
		failure := domain.ImageFailure{
			Code:     string(f.FailureCode),
			Message:  aws.ToString(f.FailureReason),
			NotFound: f.FailureCode == types.ImageFailureCodeImageNotFound,
		}
		if f.ImageId != nil {
			failure.ID = domain.ImageID{Repository: repository, Digest: aws.ToString(f.ImageId.ImageDigest)}
		}
		failures = append(failures, failure)
	}
	logger.L().Ctx(ctx).Debug("batch delete done",
		helpers.String("repository", repository),
		helpers.Int("deleted", len(out.ImageIds)),
		helpers.Int("failures", len(failures)))
	return failures, nil
}
