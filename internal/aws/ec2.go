package aws

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

const (
	limitOnDemandVCPU = "Running On-Demand Standard (A, C, D, H, I, M, R, T, Z) instances"
	limitElasticIPs   = "EC2-VPC Elastic IPs"

	ec2QuotasCode = "ec2"
)

// standardFamilies are the instance family prefixes counted against the
// standard on-demand vCPU quota.
const standardFamilies = "acdhimrtz"

// EC2API is the subset of the EC2 client used by the EC2, EBS and VPC
// checkers.
type EC2API interface {
	DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeNetworkInterfaces(ctx context.Context, params *ec2.DescribeNetworkInterfacesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
}

// EC2 reports on-demand vCPU usage and Elastic IP allocations. vCPU usage
// comes from the AWS/Usage CloudWatch metric and falls back to summing the
// running instances when the metric has no datapoints.
type EC2 struct {
	*checker.Base
	factory    ClientFactory
	client     EC2API
	cloudwatch CloudWatchAPI
	now        func() time.Time
}

func NewEC2(opts checker.Options, factory ClientFactory) *EC2 {
	return &EC2{
		Base: checker.NewBase("EC2", "ec2", opts, func(b *checker.Base) []*model.Limit {
			return []*model.Limit{
				b.NewLimit(limitOnDemandVCPU, 1152,
					model.WithLimitType("AWS::EC2::Instance"),
					model.WithQuotaCode(ec2QuotasCode, "L-1216C47A")),
				b.NewLimit(limitElasticIPs, 5,
					model.WithLimitType("AWS::EC2::EIP"),
					model.WithQuotaCode(ec2QuotasCode, "L-0263D0A3")),
			}
		}),
		factory: factory,
		now:     time.Now,
	}
}

func (c *EC2) Connect(ctx context.Context) error {
	if c.client != nil && c.cloudwatch != nil {
		return nil
	}
	cfg, err := c.factory.Config(ctx)
	if err != nil {
		return err
	}
	c.client = ec2.NewFromConfig(cfg)
	c.cloudwatch = cloudwatch.NewFromConfig(cfg)
	return nil
}

func (c *EC2) FindUsage(ctx context.Context) error {
	return c.Collect(ctx, c.Connect, func(ctx context.Context) error {
		if err := c.findVCPUs(ctx); err != nil {
			return err
		}
		return c.findElasticIPs(ctx)
	})
}

func (c *EC2) findVCPUs(ctx context.Context) error {
	value, ok, err := latestMetric(ctx, c.cloudwatch, MetricQuery{
		Namespace:  "AWS/Usage",
		MetricName: "ResourceCount",
		Dimensions: map[string]string{
			"Service":  "EC2",
			"Type":     "Resource",
			"Resource": "vCPU",
			"Class":    "Standard/OnDemand",
		},
		Statistic: "Maximum",
	}, c.now())
	if err != nil {
		c.Logger().Debug("Usage metric unavailable, counting instances",
			zap.String("error_code", checker.APIErrorCode(err)),
			zap.Error(err))
	}
	if !ok {
		value, err = c.countVCPUs(ctx)
		if err != nil {
			return err
		}
	}

	c.Limit(limitOnDemandVCPU).AddCurrentUsage(value, model.WithResourceType("AWS::EC2::Instance"))
	return nil
}

func (c *EC2) countVCPUs(ctx context.Context) (float64, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{"running"},
			},
		},
	}

	vcpus := 0
	paginator := ec2.NewDescribeInstancesPaginator(c.client, input)
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, reservation := range output.Reservations {
			for _, inst := range reservation.Instances {
				if inst.InstanceLifecycle == ec2types.InstanceLifecycleTypeSpot {
					continue
				}
				if !isStandardFamily(string(inst.InstanceType)) {
					continue
				}
				n, ok := instanceVCPUs(inst)
				if !ok {
					c.Logger().Debug("No CPU options, counting 1 vCPU",
						zap.String("instance_id", aws.ToString(inst.InstanceId)),
						zap.String("instance_type", string(inst.InstanceType)))
				}
				vcpus += n
			}
		}
	}
	return float64(vcpus), nil
}

// nonStandardPrefixes share a first letter with a standard family but have
// their own vCPU quotas.
var nonStandardPrefixes = []string{"inf", "trn", "dl", "mac", "hpc"}

func isStandardFamily(instanceType string) bool {
	if instanceType == "" {
		return false
	}
	for _, prefix := range nonStandardPrefixes {
		if strings.HasPrefix(instanceType, prefix) {
			return false
		}
	}
	return strings.ContainsRune(standardFamilies, rune(instanceType[0]))
}

// instanceVCPUs returns the instance's vCPUs; ok is false when CpuOptions is
// missing and 1 was assumed.
func instanceVCPUs(inst ec2types.Instance) (vcpus int, ok bool) {
	if inst.CpuOptions == nil || inst.CpuOptions.CoreCount == nil {
		return 1, false
	}
	threads := aws.ToInt32(inst.CpuOptions.ThreadsPerCore)
	if threads == 0 {
		threads = 1
	}
	return int(aws.ToInt32(inst.CpuOptions.CoreCount) * threads), true
}

func (c *EC2) findElasticIPs(ctx context.Context) error {
	result, err := c.client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("domain"),
				Values: []string{"vpc"},
			},
		},
	})
	if err != nil {
		return err
	}
	c.Limit(limitElasticIPs).AddCurrentUsage(float64(len(result.Addresses)), model.WithResourceType("AWS::EC2::EIP"))
	return nil
}

func (c *EC2) RequiredPermissions() []string {
	return []string{
		"cloudwatch:GetMetricStatistics",
		"ec2:DescribeAddresses",
		"ec2:DescribeInstances",
	}
}
