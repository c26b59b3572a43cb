package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ecr"

	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/model"
	"github.com/yuxishi/aws-limit-checker/internal/paginate"
)

const (
	limitECRImages  = "Images per repository"
	ecrRepoType     = "AWS::ECR::Repository"
	ecrQuotasCode   = "ecr"
	ecrImagesQuota  = "L-03A36CE1"
	ecrNextTokenKey = "NextToken"
)

// ECRAPI is the subset of the ECR client the checker uses.
type ECRAPI interface {
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
}

// ECR counts images in every repository.
type ECR struct {
	*checker.Base
	factory ClientFactory
	client  ECRAPI
}

func NewECR(opts checker.Options, factory ClientFactory) *ECR {
	return &ECR{
		Base: checker.NewBase("ECR", "ecr", opts, func(b *checker.Base) []*model.Limit {
			return []*model.Limit{
				b.NewLimit(limitECRImages, 10000,
					model.WithLimitType(ecrRepoType),
					model.WithQuotaCode(ecrQuotasCode, ecrImagesQuota)),
			}
		}),
		factory: factory,
	}
}

func (c *ECR) Connect(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	cfg, err := c.factory.Config(ctx)
	if err != nil {
		return err
	}
	c.client = ecr.NewFromConfig(cfg)
	return nil
}

func (c *ECR) FindUsage(ctx context.Context) error {
	return c.Collect(ctx, c.Connect, c.findImages)
}

func (c *ECR) findImages(ctx context.Context) error {
	repos, err := paginate.Dict(ctx, paginate.SDK(c.client.DescribeRepositories), nil, paginate.Options{
		MarkerPath:  []string{ecrNextTokenKey},
		DataPath:    []string{"Repositories"},
		MarkerParam: ecrNextTokenKey,
	})
	if err != nil {
		return err
	}

	limit := c.Limit(limitECRImages)
	for _, item := range paginate.Items(repos, "Repositories") {
		repo, ok := item.(paginate.Document)
		if !ok {
			continue
		}
		name, _ := repo["RepositoryName"].(string)
		if name == "" {
			continue
		}

		images, err := paginate.Dict(ctx, paginate.SDK(c.client.DescribeImages), paginate.Document{"RepositoryName": name}, paginate.Options{
			MarkerPath:  []string{ecrNextTokenKey},
			DataPath:    []string{"ImageDetails"},
			MarkerParam: ecrNextTokenKey,
		})
		if err != nil {
			return err
		}
		limit.AddCurrentUsage(float64(len(paginate.Items(images, "ImageDetails"))),
			model.WithResourceID(name),
			model.WithResourceType(ecrRepoType))
	}
	return nil
}

func (c *ECR) RequiredPermissions() []string {
	return []string{"ecr:DescribeRepositories", "ecr:DescribeImages"}
}
