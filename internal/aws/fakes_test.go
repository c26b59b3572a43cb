package aws

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"
	sqtypes "github.com/aws/aws-sdk-go-v2/service/servicequotas/types"
)

type fakeFactory struct {
	err   error
	calls int
}

func (f *fakeFactory) Config(_ context.Context) (aws.Config, error) {
	f.calls++
	if f.err != nil {
		return aws.Config{}, f.err
	}
	return aws.Config{Region: "us-east-1"}, nil
}

// page returns items[start:start+size] and the token of the next page.
func page[T any](items []T, token *string, size int) ([]T, *string) {
	start := 0
	if token != nil {
		start, _ = strconv.Atoi(*token)
	}
	end := start + size
	if end >= len(items) {
		return items[start:], nil
	}
	return items[start:end], aws.String(strconv.Itoa(end))
}

type fakeECR struct {
	repos  []string
	images map[string]int
	err    error
}

func (f *fakeECR) DescribeRepositories(_ context.Context, in *ecr.DescribeRepositoriesInput, _ ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	names, next := page(f.repos, in.NextToken, 1)
	out := &ecr.DescribeRepositoriesOutput{NextToken: next}
	for _, n := range names {
		out.Repositories = append(out.Repositories, ecrtypes.Repository{RepositoryName: aws.String(n)})
	}
	return out, nil
}

func (f *fakeECR) DescribeImages(_ context.Context, in *ecr.DescribeImagesInput, _ ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error) {
	name := aws.ToString(in.RepositoryName)
	all := make([]ecrtypes.ImageDetail, f.images[name])
	for i := range all {
		all[i] = ecrtypes.ImageDetail{RepositoryName: aws.String(name), ImageDigest: aws.String(fmt.Sprintf("sha256:%d", i))}
	}
	details, next := page(all, in.NextToken, 2)
	return &ecr.DescribeImagesOutput{ImageDetails: details, NextToken: next}, nil
}

type fakeCloudTrail struct {
	trails       []cttypes.Trail
	selectors    map[string][]cttypes.EventSelector
	selectorErrs map[string]error
}

func (f *fakeCloudTrail) DescribeTrails(_ context.Context, _ *cloudtrail.DescribeTrailsInput, _ ...func(*cloudtrail.Options)) (*cloudtrail.DescribeTrailsOutput, error) {
	return &cloudtrail.DescribeTrailsOutput{TrailList: f.trails}, nil
}

func (f *fakeCloudTrail) GetEventSelectors(_ context.Context, in *cloudtrail.GetEventSelectorsInput, _ ...func(*cloudtrail.Options)) (*cloudtrail.GetEventSelectorsOutput, error) {
	arn := aws.ToString(in.TrailName)
	if err := f.selectorErrs[arn]; err != nil {
		return nil, err
	}
	return &cloudtrail.GetEventSelectorsOutput{EventSelectors: f.selectors[arn]}, nil
}

type fakeEC2 struct {
	addresses  int
	instances  []ec2types.Instance
	volumes    []ec2types.Volume
	vpcs       int
	enis       int
	sgs        int
	subnets    []ec2types.Subnet
	regions    []string
	volumesErr error
}

func (f *fakeEC2) DescribeAddresses(_ context.Context, _ *ec2.DescribeAddressesInput, _ ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error) {
	return &ec2.DescribeAddressesOutput{Addresses: make([]ec2types.Address, f.addresses)}, nil
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	instances, next := page(f.instances, in.NextToken, 2)
	return &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{Instances: instances}},
		NextToken:    next,
	}, nil
}

func (f *fakeEC2) DescribeVolumes(_ context.Context, in *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	if f.volumesErr != nil {
		return nil, f.volumesErr
	}
	volumes, next := page(f.volumes, in.NextToken, 2)
	return &ec2.DescribeVolumesOutput{Volumes: volumes, NextToken: next}, nil
}

func (f *fakeEC2) DescribeVpcs(_ context.Context, in *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	vpcs, next := page(make([]ec2types.Vpc, f.vpcs), in.NextToken, 3)
	return &ec2.DescribeVpcsOutput{Vpcs: vpcs, NextToken: next}, nil
}

func (f *fakeEC2) DescribeNetworkInterfaces(_ context.Context, in *ec2.DescribeNetworkInterfacesInput, _ ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error) {
	enis, next := page(make([]ec2types.NetworkInterface, f.enis), in.NextToken, 3)
	return &ec2.DescribeNetworkInterfacesOutput{NetworkInterfaces: enis, NextToken: next}, nil
}

func (f *fakeEC2) DescribeSecurityGroups(_ context.Context, in *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	sgs, next := page(make([]ec2types.SecurityGroup, f.sgs), in.NextToken, 3)
	return &ec2.DescribeSecurityGroupsOutput{SecurityGroups: sgs, NextToken: next}, nil
}

func (f *fakeEC2) DescribeSubnets(_ context.Context, in *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	subnets, next := page(f.subnets, in.NextToken, 2)
	return &ec2.DescribeSubnetsOutput{Subnets: subnets, NextToken: next}, nil
}

func (f *fakeEC2) DescribeRegions(_ context.Context, _ *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	out := &ec2.DescribeRegionsOutput{}
	for _, r := range f.regions {
		out.Regions = append(out.Regions, ec2types.Region{RegionName: aws.String(r)})
	}
	return out, nil
}

type fakeCloudWatch struct {
	datapoints []cwtypes.Datapoint
	err        error
	inputs     []*cloudwatch.GetMetricStatisticsInput
}

func (f *fakeCloudWatch) GetMetricStatistics(_ context.Context, in *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &cloudwatch.GetMetricStatisticsOutput{Datapoints: f.datapoints}, nil
}

type fakeELB struct {
	lbTypes      []elbtypes.LoadBalancerTypeEnum
	targetGroups int
}

func (f *fakeELB) DescribeLoadBalancers(_ context.Context, in *elasticloadbalancingv2.DescribeLoadBalancersInput, _ ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error) {
	types, next := page(f.lbTypes, in.Marker, 2)
	out := &elasticloadbalancingv2.DescribeLoadBalancersOutput{NextMarker: next}
	for _, t := range types {
		out.LoadBalancers = append(out.LoadBalancers, elbtypes.LoadBalancer{Type: t})
	}
	return out, nil
}

func (f *fakeELB) DescribeTargetGroups(_ context.Context, in *elasticloadbalancingv2.DescribeTargetGroupsInput, _ ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTargetGroupsOutput, error) {
	groups, next := page(make([]elbtypes.TargetGroup, f.targetGroups), in.Marker, 2)
	return &elasticloadbalancingv2.DescribeTargetGroupsOutput{TargetGroups: groups, NextMarker: next}, nil
}

type fakeAutoScaling struct {
	groups  int
	configs int
}

func (f *fakeAutoScaling) DescribeAutoScalingGroups(_ context.Context, in *autoscaling.DescribeAutoScalingGroupsInput, _ ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	groups, next := page(make([]astypes.AutoScalingGroup, f.groups), in.NextToken, 2)
	return &autoscaling.DescribeAutoScalingGroupsOutput{AutoScalingGroups: groups, NextToken: next}, nil
}

func (f *fakeAutoScaling) DescribeLaunchConfigurations(_ context.Context, in *autoscaling.DescribeLaunchConfigurationsInput, _ ...func(*autoscaling.Options)) (*autoscaling.DescribeLaunchConfigurationsOutput, error) {
	configs, next := page(make([]astypes.LaunchConfiguration, f.configs), in.NextToken, 2)
	return &autoscaling.DescribeLaunchConfigurationsOutput{LaunchConfigurations: configs, NextToken: next}, nil
}

type fakeEKS struct {
	clusters   []string
	nodegroups map[string]int
	err        error
}

func (f *fakeEKS) ListClusters(_ context.Context, in *eks.ListClustersInput, _ ...func(*eks.Options)) (*eks.ListClustersOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	clusters, next := page(f.clusters, in.NextToken, 1)
	return &eks.ListClustersOutput{Clusters: clusters, NextToken: next}, nil
}

func (f *fakeEKS) ListNodegroups(_ context.Context, in *eks.ListNodegroupsInput, _ ...func(*eks.Options)) (*eks.ListNodegroupsOutput, error) {
	all := make([]string, f.nodegroups[aws.ToString(in.ClusterName)])
	for i := range all {
		all[i] = fmt.Sprintf("ng-%d", i)
	}
	groups, next := page(all, in.NextToken, 2)
	return &eks.ListNodegroupsOutput{Nodegroups: groups, NextToken: next}, nil
}

type fakeServiceQuotas struct {
	quotas map[string][]sqtypes.ServiceQuota
	errs   map[string]error
}

func (f *fakeServiceQuotas) ListServiceQuotas(_ context.Context, in *servicequotas.ListServiceQuotasInput, _ ...func(*servicequotas.Options)) (*servicequotas.ListServiceQuotasOutput, error) {
	code := aws.ToString(in.ServiceCode)
	if err := f.errs[code]; err != nil {
		return nil, err
	}
	quotas, next := page(f.quotas[code], in.NextToken, 1)
	return &servicequotas.ListServiceQuotasOutput{Quotas: quotas, NextToken: next}, nil
}

var errThrottled = errors.New("throttled")
