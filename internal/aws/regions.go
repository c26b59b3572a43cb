package aws

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/yuxishi/aws-limit-checker/internal/model"
)

// RegionsAPI is the EC2 call used to enumerate regions.
type RegionsAPI interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// GetRegions lists the regions enabled for the account.
func GetRegions(ctx context.Context, factory ClientFactory) ([]model.Region, error) {
	cfg, err := factory.Config(ctx)
	if err != nil {
		return nil, err
	}
	return ListRegions(ctx, ec2.NewFromConfig(cfg))
}

// ListRegions returns the enabled regions, sorted by code.
func ListRegions(ctx context.Context, client RegionsAPI) ([]model.Region, error) {
	output, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		AllRegions: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}

	regions := make([]model.Region, 0, len(output.Regions))
	for _, r := range output.Regions {
		code := aws.ToString(r.RegionName)
		regions = append(regions, model.Region{
			Code: code,
			Name: code,
		})
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].Code < regions[j].Code })
	return regions, nil
}
