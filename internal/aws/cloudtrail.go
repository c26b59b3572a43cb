package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"go.uber.org/zap"

	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

const (
	limitTrails         = "Trails Per Region"
	limitEventSelectors = "Event Selectors Per Trail"
	limitDataResources  = "Data Resources Per Trail"

	trailType         = "AWS::CloudTrail::Trail"
	eventSelectorType = "AWS::CloudTrail::EventSelector"
	dataResourceType  = "AWS::CloudTrail::DataResource"
)

// CloudTrailAPI is the subset of the CloudTrail client the checker uses.
type CloudTrailAPI interface {
	DescribeTrails(ctx context.Context, params *cloudtrail.DescribeTrailsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.DescribeTrailsOutput, error)
	GetEventSelectors(ctx context.Context, params *cloudtrail.GetEventSelectorsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.GetEventSelectorsOutput, error)
}

// CloudTrail counts trails, and event selectors and data resources of
// trails whose home region is the checked region.
type CloudTrail struct {
	*checker.Base
	factory ClientFactory
	client  CloudTrailAPI
}

func NewCloudTrail(opts checker.Options, factory ClientFactory) *CloudTrail {
	return &CloudTrail{
		Base: checker.NewBase("CloudTrail", "cloudtrail", opts, func(b *checker.Base) []*model.Limit {
			return []*model.Limit{
				b.NewLimit(limitTrails, 5, model.WithLimitType(trailType)),
				b.NewLimit(limitEventSelectors, 5,
					model.WithLimitType(trailType),
					model.WithLimitSubtype(eventSelectorType)),
				b.NewLimit(limitDataResources, 250,
					model.WithLimitType(trailType),
					model.WithLimitSubtype(dataResourceType)),
			}
		}),
		factory: factory,
	}
}

func (c *CloudTrail) Connect(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	cfg, err := c.factory.Config(ctx)
	if err != nil {
		return err
	}
	c.client = cloudtrail.NewFromConfig(cfg)
	return nil
}

func (c *CloudTrail) FindUsage(ctx context.Context) error {
	return c.Collect(ctx, c.Connect, c.findTrails)
}

func (c *CloudTrail) findTrails(ctx context.Context) error {
	out, err := c.client.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{
		IncludeShadowTrails: aws.Bool(false),
	})
	if err != nil {
		return err
	}

	for _, trail := range out.TrailList {
		name := aws.ToString(trail.Name)
		if aws.ToString(trail.HomeRegion) != c.Region() {
			c.Logger().Debug("Ignoring event selectors and data resources for trail in non-home region",
				zap.String("trail", name))
			continue
		}

		resp, err := c.client.GetEventSelectors(ctx, &cloudtrail.GetEventSelectorsInput{
			TrailName: trail.TrailARN,
		})
		if err != nil {
			c.Logger().Debug("Unable to call GetEventSelectors on trail",
				zap.String("trail", name),
				zap.Error(err))
			continue
		}

		dataResources := 0
		for _, sel := range resp.EventSelectors {
			dataResources += len(sel.DataResources)
		}
		c.Limit(limitEventSelectors).AddCurrentUsage(float64(len(resp.EventSelectors)),
			model.WithResourceID(name),
			model.WithResourceType(eventSelectorType))
		c.Limit(limitDataResources).AddCurrentUsage(float64(dataResources),
			model.WithResourceID(name),
			model.WithResourceType(dataResourceType))
	}

	c.Limit(limitTrails).AddCurrentUsage(float64(len(out.TrailList)),
		model.WithResourceType(trailType))
	return nil
}

func (c *CloudTrail) RequiredPermissions() []string {
	return []string{"cloudtrail:DescribeTrails", "cloudtrail:GetEventSelectors"}
}
