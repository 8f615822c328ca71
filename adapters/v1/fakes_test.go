package v1

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

const (
	testAccount = "123456789012"
	testRegion  = "us-east-1"
	digestA     = "sha256:be178c0543eb17f5f3043021c9e5fcf30285e557a4fc309cce97ff9ca6182912"
	digestB     = "sha256:f2269e73124dd0f60a7d19a2ce1264d33d08a985aed0ee6b0b89d0be470592cd"
)

func uri(repository, suffix string) string {
	return fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/%s%s", testAccount, testRegion, repository, suffix)
}

// page returns the item of the page addressed by token and the token of the next page
func page[T any](pages []T, token *string) (T, *string) {
	i := 0
	if token != nil {
		fmt.Sscanf(*token, "%d", &i)
	}
	var next *string
	if i+1 < len(pages) {
		next = aws.String(fmt.Sprint(i + 1))
	}
	return pages[i], next
}

type fakeECR struct {
	repositories [][]string
	images       map[string][][]ecrtypes.ImageDetail
	deleteErr    error
	notFound     map[string]bool
	deleted      [][]string
}

func (f *fakeECR) DescribeRegistry(context.Context, *ecr.DescribeRegistryInput, ...func(*ecr.Options)) (*ecr.DescribeRegistryOutput, error) {
	return &ecr.DescribeRegistryOutput{RegistryId: aws.String(testAccount)}, nil
}

func (f *fakeECR) DescribeRepositories(_ context.Context, in *ecr.DescribeRepositoriesInput, _ ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error) {
	names, next := page(f.repositories, in.NextToken)
	out := &ecr.DescribeRepositoriesOutput{NextToken: next}
	for _, n := range names {
		out.Repositories = append(out.Repositories, ecrtypes.Repository{RepositoryName: aws.String(n)})
	}
	return out, nil
}

func (f *fakeECR) DescribeImages(_ context.Context, in *ecr.DescribeImagesInput, _ ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error) {
	pages, ok := f.images[aws.ToString(in.RepositoryName)]
	if !ok {
		return &ecr.DescribeImagesOutput{}, nil
	}
	details, next := page(pages, in.NextToken)
	return &ecr.DescribeImagesOutput{ImageDetails: details, NextToken: next}, nil
}

func (f *fakeECR) BatchDeleteImage(_ context.Context, in *ecr.BatchDeleteImageInput, _ ...func(*ecr.Options)) (*ecr.BatchDeleteImageOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	out := &ecr.BatchDeleteImageOutput{}
	var batch []string
	for _, id := range in.ImageIds {
		digest := aws.ToString(id.ImageDigest)
		batch = append(batch, digest)
		if f.notFound[digest] {
			out.Failures = append(out.Failures, ecrtypes.ImageFailure{
				ImageId:       &ecrtypes.ImageIdentifier{ImageDigest: id.ImageDigest},
				FailureCode:   ecrtypes.ImageFailureCodeImageNotFound,
				FailureReason: aws.String("Requested image not found"),
			})
			continue
		}
		out.ImageIds = append(out.ImageIds, id)
	}
	f.deleted = append(f.deleted, batch)
	return out, nil
}

type fakeLambda struct {
	functions [][]lambdatypes.FunctionConfiguration
	code      map[string]*lambdatypes.FunctionCodeLocation
	err       error
}

func (f *fakeLambda) ListFunctions(_ context.Context, in *lambda.ListFunctionsInput, _ ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	fns, next := page(f.functions, in.Marker)
	return &lambda.ListFunctionsOutput{Functions: fns, NextMarker: next}, nil
}

func (f *fakeLambda) GetFunction(_ context.Context, in *lambda.GetFunctionInput, _ ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error) {
	return &lambda.GetFunctionOutput{Code: f.code[aws.ToString(in.FunctionName)]}, nil
}

type fakeECS struct {
	mu               sync.Mutex
	clusters         []string
	services         map[string][]ecstypes.Service
	definitions      map[string][]string
	families         []string
	familyRevisions  map[string][][]string
	describeCalls    int
	describeServices [][]string
}

func (f *fakeECS) ListClusters(context.Context, *ecs.ListClustersInput, ...func(*ecs.Options)) (*ecs.ListClustersOutput, error) {
	return &ecs.ListClustersOutput{ClusterArns: f.clusters}, nil
}

func (f *fakeECS) ListServices(_ context.Context, in *ecs.ListServicesInput, _ ...func(*ecs.Options)) (*ecs.ListServicesOutput, error) {
	var arns []string
	for _, s := range f.services[aws.ToString(in.Cluster)] {
		arns = append(arns, aws.ToString(s.ServiceArn))
	}
	return &ecs.ListServicesOutput{ServiceArns: arns}, nil
}

func (f *fakeECS) DescribeServices(_ context.Context, in *ecs.DescribeServicesInput, _ ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error) {
	f.mu.Lock()
	f.describeServices = append(f.describeServices, in.Services)
	f.mu.Unlock()
	want := map[string]bool{}
	for _, s := range in.Services {
		want[s] = true
	}
	out := &ecs.DescribeServicesOutput{}
	for _, s := range f.services[aws.ToString(in.Cluster)] {
		if want[aws.ToString(s.ServiceArn)] {
			out.Services = append(out.Services, s)
		}
	}
	return out, nil
}

func (f *fakeECS) DescribeTaskDefinition(_ context.Context, in *ecs.DescribeTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.DescribeTaskDefinitionOutput, error) {
	f.mu.Lock()
	f.describeCalls++
	f.mu.Unlock()
	images, ok := f.definitions[aws.ToString(in.TaskDefinition)]
	if !ok {
		return nil, fmt.Errorf("task definition %s not found", aws.ToString(in.TaskDefinition))
	}
	td := &ecstypes.TaskDefinition{}
	for _, img := range images {
		td.ContainerDefinitions = append(td.ContainerDefinitions, ecstypes.ContainerDefinition{Image: aws.String(img)})
	}
	return &ecs.DescribeTaskDefinitionOutput{TaskDefinition: td}, nil
}

func (f *fakeECS) ListTaskDefinitionFamilies(context.Context, *ecs.ListTaskDefinitionFamiliesInput, ...func(*ecs.Options)) (*ecs.ListTaskDefinitionFamiliesOutput, error) {
	return &ecs.ListTaskDefinitionFamiliesOutput{Families: f.families}, nil
}

func (f *fakeECS) ListTaskDefinitions(_ context.Context, in *ecs.ListTaskDefinitionsInput, _ ...func(*ecs.Options)) (*ecs.ListTaskDefinitionsOutput, error) {
	pages, ok := f.familyRevisions[aws.ToString(in.FamilyPrefix)]
	if !ok {
		return &ecs.ListTaskDefinitionsOutput{}, nil
	}
	arns, next := page(pages, in.NextToken)
	return &ecs.ListTaskDefinitionsOutput{TaskDefinitionArns: arns, NextToken: next}, nil
}

func taskDefinitionARN(family string, revision int) string {
	return fmt.Sprintf("arn:aws:ecs:%s:%s:task-definition/%s:%d", testRegion, testAccount, family, revision)
}
