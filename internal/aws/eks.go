package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"

	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

const (
	limitEKSClusters   = "Clusters"
	limitEKSNodegroups = "Managed node groups per cluster"

	eksQuotasCode  = "eks"
	eksClusterType = "AWS::EKS::Cluster"
)

// EKSAPI is the subset of the EKS client the checker uses.
type EKSAPI interface {
	ListClusters(ctx context.Context, params *eks.ListClustersInput, optFns ...func(*eks.Options)) (*eks.ListClustersOutput, error)
	ListNodegroups(ctx context.Context, params *eks.ListNodegroupsInput, optFns ...func(*eks.Options)) (*eks.ListNodegroupsOutput, error)
}

type EKS struct {
	*checker.Base
	factory ClientFactory
	client  EKSAPI
}

func NewEKS(opts checker.Options, factory ClientFactory) *EKS {
	return &EKS{
		Base: checker.NewBase("EKS", "eks", opts, func(b *checker.Base) []*model.Limit {
			return []*model.Limit{
				b.NewLimit(limitEKSClusters, 100,
					model.WithLimitType(eksClusterType),
					model.WithQuotaCode(eksQuotasCode, "L-1194D53C")),
				b.NewLimit(limitEKSNodegroups, 30,
					model.WithLimitType(eksClusterType),
					model.WithLimitSubtype("AWS::EKS::Nodegroup"),
					model.WithQuotaCode(eksQuotasCode, "L-6D54EA21")),
			}
		}),
		factory: factory,
	}
}

func (c *EKS) Connect(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	cfg, err := c.factory.Config(ctx)
	if err != nil {
		return err
	}
	c.client = eks.NewFromConfig(cfg)
	return nil
}

func (c *EKS) FindUsage(ctx context.Context) error {
	return c.Collect(ctx, c.Connect, c.findClusters)
}

func (c *EKS) findClusters(ctx context.Context) error {
	var clusters []string
	paginator := eks.NewListClustersPaginator(c.client, &eks.ListClustersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		clusters = append(clusters, output.Clusters...)
	}
	c.Limit(limitEKSClusters).AddCurrentUsage(float64(len(clusters)), model.WithResourceType(eksClusterType))

	for _, name := range clusters {
		count := 0
		nodegroups := eks.NewListNodegroupsPaginator(c.client, &eks.ListNodegroupsInput{
			ClusterName: aws.String(name),
		})
		for nodegroups.HasMorePages() {
			output, err := nodegroups.NextPage(ctx)
			if err != nil {
				return err
			}
			count += len(output.Nodegroups)
		}
		c.Limit(limitEKSNodegroups).AddCurrentUsage(float64(count),
			model.WithResourceID(name),
			model.WithResourceType(eksClusterType))
	}
	return nil
}

func (c *EKS) RequiredPermissions() []string {
	return []string{"eks:ListClusters", "eks:ListNodegroups"}
}
