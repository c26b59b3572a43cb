package aws

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

const (
	limitVPCs              = "VPCs per Region"
	limitNetworkInterfaces = "Network interfaces per Region"
	limitSecurityGroups    = "VPC security groups per Region"
	limitSubnetsPerVPC     = "Subnets per VPC"

	vpcQuotasCode = "vpc"
)

// VPC counts VPCs, network interfaces, security groups and subnets per VPC.
type VPC struct {
	*checker.Base
	factory ClientFactory
	client  EC2API
}

func NewVPC(opts checker.Options, factory ClientFactory) *VPC {
	return &VPC{
		Base: checker.NewBase("VPC", "ec2", opts, func(b *checker.Base) []*model.Limit {
			return []*model.Limit{
				b.NewLimit(limitVPCs, 5,
					model.WithLimitType("AWS::EC2::VPC"),
					model.WithQuotaCode(vpcQuotasCode, "L-F678F1CE")),
				b.NewLimit(limitNetworkInterfaces, 5000,
					model.WithLimitType("AWS::EC2::NetworkInterface"),
					model.WithQuotaCode(vpcQuotasCode, "L-DF5E4CA3")),
				b.NewLimit(limitSecurityGroups, 2500,
					model.WithLimitType("AWS::EC2::SecurityGroup"),
					model.WithQuotaCode(vpcQuotasCode, "L-E79EC296")),
				b.NewLimit(limitSubnetsPerVPC, 200,
					model.WithLimitType("AWS::EC2::Subnet"),
					model.WithQuotaCode(vpcQuotasCode, "L-407747CB")),
			}
		}),
		factory: factory,
	}
}

func (c *VPC) Connect(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	cfg, err := c.factory.Config(ctx)
	if err != nil {
		return err
	}
	c.client = ec2.NewFromConfig(cfg)
	return nil
}

func (c *VPC) FindUsage(ctx context.Context) error {
	return c.Collect(ctx, c.Connect, func(ctx context.Context) error {
		for _, find := range []func(context.Context) error{
			c.findVPCs,
			c.findNetworkInterfaces,
			c.findSecurityGroups,
			c.findSubnets,
		} {
			if err := find(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *VPC) findVPCs(ctx context.Context) error {
	count := 0
	paginator := ec2.NewDescribeVpcsPaginator(c.client, &ec2.DescribeVpcsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		count += len(output.Vpcs)
	}
	c.Limit(limitVPCs).AddCurrentUsage(float64(count), model.WithResourceType("AWS::EC2::VPC"))
	return nil
}

func (c *VPC) findNetworkInterfaces(ctx context.Context) error {
	count := 0
	paginator := ec2.NewDescribeNetworkInterfacesPaginator(c.client, &ec2.DescribeNetworkInterfacesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		count += len(output.NetworkInterfaces)
	}
	c.Limit(limitNetworkInterfaces).AddCurrentUsage(float64(count), model.WithResourceType("AWS::EC2::NetworkInterface"))
	return nil
}

func (c *VPC) findSecurityGroups(ctx context.Context) error {
	count := 0
	paginator := ec2.NewDescribeSecurityGroupsPaginator(c.client, &ec2.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		count += len(output.SecurityGroups)
	}
	c.Limit(limitSecurityGroups).AddCurrentUsage(float64(count), model.WithResourceType("AWS::EC2::SecurityGroup"))
	return nil
}

func (c *VPC) findSubnets(ctx context.Context) error {
	perVPC := make(map[string]int)
	paginator := ec2.NewDescribeSubnetsPaginator(c.client, &ec2.DescribeSubnetsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, subnet := range output.Subnets {
			perVPC[aws.ToString(subnet.VpcId)]++
		}
	}

	ids := make([]string, 0, len(perVPC))
	for id := range perVPC {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c.Limit(limitSubnetsPerVPC).AddCurrentUsage(float64(perVPC[id]),
			model.WithResourceID(id),
			model.WithResourceType("AWS::EC2::VPC"))
	}
	return nil
}

func (c *VPC) RequiredPermissions() []string {
	return []string{
		"ec2:DescribeNetworkInterfaces",
		"ec2:DescribeSecurityGroups",
		"ec2:DescribeSubnets",
		"ec2:DescribeVpcs",
	}
}
