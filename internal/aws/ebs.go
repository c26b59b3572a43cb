package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

const (
	ebsQuotasCode = "ebs"
	ebsVolumeType = "AWS::EC2::Volume"
	gibPerTiB     = 1024.0
)

// ebsStorageLimits maps volume type to its storage limit name and quota code.
var ebsStorageLimits = []struct {
	volumeType string
	name       string
	quotaCode  string
}{
	{"gp2", "Storage for General Purpose SSD (gp2) volumes, in TiB", "L-D18FCD1D"},
	{"gp3", "Storage for General Purpose SSD (gp3) volumes, in TiB", "L-7A658B76"},
	{"io1", "Storage for Provisioned IOPS SSD (io1) volumes, in TiB", "L-FD252861"},
	{"io2", "Storage for Provisioned IOPS SSD (io2) volumes, in TiB", "L-09BD8365"},
}

// EBS sums provisioned volume storage per volume type.
type EBS struct {
	*checker.Base
	factory ClientFactory
	client  EC2API
}

func NewEBS(opts checker.Options, factory ClientFactory) *EBS {
	return &EBS{
		Base: checker.NewBase("EBS", "ec2", opts, func(b *checker.Base) []*model.Limit {
			limits := make([]*model.Limit, 0, len(ebsStorageLimits))
			for _, s := range ebsStorageLimits {
				limits = append(limits, b.NewLimit(s.name, 50,
					model.WithLimitType(ebsVolumeType),
					model.WithLimitSubtype(s.volumeType),
					model.WithQuotaCode(ebsQuotasCode, s.quotaCode)))
			}
			return limits
		}),
		factory: factory,
	}
}

func (c *EBS) Connect(ctx context.Context) error {
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

func (c *EBS) FindUsage(ctx context.Context) error {
	return c.Collect(ctx, c.Connect, c.findVolumes)
}

func (c *EBS) findVolumes(ctx context.Context) error {
	sizeGiB := make(map[string]int64)
	paginator := ec2.NewDescribeVolumesPaginator(c.client, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, volume := range output.Volumes {
			if volume.Size != nil {
				sizeGiB[string(volume.VolumeType)] += int64(*volume.Size)
			}
		}
	}

	for _, s := range ebsStorageLimits {
		c.Limit(s.name).AddCurrentUsage(float64(sizeGiB[s.volumeType])/gibPerTiB,
			model.WithResourceType(ebsVolumeType))
	}
	return nil
}

func (c *EBS) RequiredPermissions() []string {
	return []string{"ec2:DescribeVolumes"}
}
