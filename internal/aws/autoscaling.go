package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/autoscaling"

	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

const (
	limitASGs                 = "Auto Scaling groups per region"
	limitLaunchConfigurations = "Launch configurations per region"

	autoscalingQuotasCode = "autoscaling"
)

// AutoScalingAPI is the subset of the Auto Scaling client the checker uses.
type AutoScalingAPI interface {
	DescribeAutoScalingGroups(ctx context.Context, params *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
	DescribeLaunchConfigurations(ctx context.Context, params *autoscaling.DescribeLaunchConfigurationsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeLaunchConfigurationsOutput, error)
}

type AutoScaling struct {
	*checker.Base
	factory ClientFactory
	client  AutoScalingAPI
}

func NewAutoScaling(opts checker.Options, factory ClientFactory) *AutoScaling {
	return &AutoScaling{
		Base: checker.NewBase("AutoScaling", "autoscaling", opts, func(b *checker.Base) []*model.Limit {
			return []*model.Limit{
				b.NewLimit(limitASGs, 500,
					model.WithLimitType("AWS::AutoScaling::AutoScalingGroup"),
					model.WithQuotaCode(autoscalingQuotasCode, "L-CDE20ADC")),
				b.NewLimit(limitLaunchConfigurations, 200,
					model.WithLimitType("AWS::AutoScaling::LaunchConfiguration"),
					model.WithQuotaCode(autoscalingQuotasCode, "L-6B80B8FA")),
			}
		}),
		factory: factory,
	}
}

func (c *AutoScaling) Connect(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	cfg, err := c.factory.Config(ctx)
	if err != nil {
		return err
	}
	c.client = autoscaling.NewFromConfig(cfg)
	return nil
}

func (c *AutoScaling) FindUsage(ctx context.Context) error {
	return c.Collect(ctx, c.Connect, func(ctx context.Context) error {
		groups := 0
		groupPages := autoscaling.NewDescribeAutoScalingGroupsPaginator(c.client, &autoscaling.DescribeAutoScalingGroupsInput{})
		for groupPages.HasMorePages() {
			output, err := groupPages.NextPage(ctx)
			if err != nil {
				return err
			}
			groups += len(output.AutoScalingGroups)
		}

		configs := 0
		configPages := autoscaling.NewDescribeLaunchConfigurationsPaginator(c.client, &autoscaling.DescribeLaunchConfigurationsInput{})
		for configPages.HasMorePages() {
			output, err := configPages.NextPage(ctx)
			if err != nil {
				return err
			}
			configs += len(output.LaunchConfigurations)
		}

		c.Limit(limitASGs).AddCurrentUsage(float64(groups), model.WithResourceType("AWS::AutoScaling::AutoScalingGroup"))
		c.Limit(limitLaunchConfigurations).AddCurrentUsage(float64(configs), model.WithResourceType("AWS::AutoScaling::LaunchConfiguration"))
		return nil
	})
}

func (c *AutoScaling) RequiredPermissions() []string {
	return []string{
		"autoscaling:DescribeAutoScalingGroups",
		"autoscaling:DescribeLaunchConfigurations",
	}
}
