package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

const (
	limitALBs         = "Application Load Balancers per Region"
	limitNLBs         = "Network Load Balancers per Region"
	limitTargetGroups = "Target Groups per Region"

	elbQuotasCode = "elasticloadbalancing"
	elbLBType     = "AWS::ElasticLoadBalancingV2::LoadBalancer"
)

// ELBAPI is the subset of the ELBv2 client the checker uses.
type ELBAPI interface {
	DescribeLoadBalancers(ctx context.Context, params *elasticloadbalancingv2.DescribeLoadBalancersInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error)
	DescribeTargetGroups(ctx context.Context, params *elasticloadbalancingv2.DescribeTargetGroupsInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTargetGroupsOutput, error)
}

// ELB counts load balancers by type and target groups.
type ELB struct {
	*checker.Base
	factory ClientFactory
	client  ELBAPI
}

func NewELB(opts checker.Options, factory ClientFactory) *ELB {
	return &ELB{
		Base: checker.NewBase("ELB", "elasticloadbalancing", opts, func(b *checker.Base) []*model.Limit {
			return []*model.Limit{
				b.NewLimit(limitALBs, 50,
					model.WithLimitType(elbLBType),
					model.WithLimitSubtype("application"),
					model.WithQuotaCode(elbQuotasCode, "L-53DA6B97")),
				b.NewLimit(limitNLBs, 50,
					model.WithLimitType(elbLBType),
					model.WithLimitSubtype("network"),
					model.WithQuotaCode(elbQuotasCode, "L-69A177A2")),
				b.NewLimit(limitTargetGroups, 3000,
					model.WithLimitType("AWS::ElasticLoadBalancingV2::TargetGroup"),
					model.WithQuotaCode(elbQuotasCode, "L-B22855CB")),
			}
		}),
		factory: factory,
	}
}

func (c *ELB) Connect(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	cfg, err := c.factory.Config(ctx)
	if err != nil {
		return err
	}
	c.client = elasticloadbalancingv2.NewFromConfig(cfg)
	return nil
}

func (c *ELB) FindUsage(ctx context.Context) error {
	return c.Collect(ctx, c.Connect, func(ctx context.Context) error {
		if err := c.findLoadBalancers(ctx); err != nil {
			return err
		}
		return c.findTargetGroups(ctx)
	})
}

func (c *ELB) findLoadBalancers(ctx context.Context) error {
	counts := make(map[elbtypes.LoadBalancerTypeEnum]int)
	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(c.client, &elasticloadbalancingv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, lb := range output.LoadBalancers {
			counts[lb.Type]++
		}
	}

	c.Limit(limitALBs).AddCurrentUsage(float64(counts[elbtypes.LoadBalancerTypeEnumApplication]), model.WithResourceType(elbLBType))
	c.Limit(limitNLBs).AddCurrentUsage(float64(counts[elbtypes.LoadBalancerTypeEnumNetwork]), model.WithResourceType(elbLBType))
	return nil
}

func (c *ELB) findTargetGroups(ctx context.Context) error {
	count := 0
	paginator := elasticloadbalancingv2.NewDescribeTargetGroupsPaginator(c.client, &elasticloadbalancingv2.DescribeTargetGroupsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		count += len(output.TargetGroups)
	}
	c.Limit(limitTargetGroups).AddCurrentUsage(float64(count), model.WithResourceType("AWS::ElasticLoadBalancingV2::TargetGroup"))
	return nil
}

func (c *ELB) RequiredPermissions() []string {
	return []string{
		"elasticloadbalancing:DescribeLoadBalancers",
		"elasticloadbalancing:DescribeTargetGroups",
	}
}
