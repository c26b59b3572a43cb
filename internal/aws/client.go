package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"
)

const roleSessionName = "aws-limit-checker"

// ClientFactory supplies the SDK configuration checkers build their clients
// from.
type ClientFactory interface {
	Config(ctx context.Context) (aws.Config, error)
}

// RoleOptions describe a role to assume before any API call.
type RoleOptions struct {
	AccountID  string
	RoleName   string
	ExternalID string
}

// ARN returns the role ARN in the standard partition.
func (r RoleOptions) ARN() string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", r.AccountID, r.RoleName)
}

type ConnectorOptions struct {
	Region  string
	Profile string
	Role    *RoleOptions
	Logger  *zap.Logger
}

// Connector loads the SDK configuration once and shares it between checkers.
type Connector struct {
	opts   ConnectorOptions
	logger *zap.Logger

	mu  sync.Mutex
	cfg *aws.Config
}

func NewConnector(opts ConnectorOptions) *Connector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{opts: opts, logger: logger.Named("connector")}
}

// Config loads the configuration on first call, assuming the configured role
// if any, and returns the cached value afterwards.
func (c *Connector) Config(ctx context.Context) (aws.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg != nil {
		return *c.cfg, nil
	}

	cfg, err := LoadConfig(ctx, c.opts.Region, c.opts.Profile)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}

	if role := c.opts.Role; role != nil && role.RoleName != "" {
		c.logger.Info("Assuming role", zap.String("role_arn", role.ARN()))
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), role.ARN(), func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = roleSessionName
			if role.ExternalID != "" {
				o.ExternalID = aws.String(role.ExternalID)
			}
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	c.cfg = &cfg
	return cfg, nil
}

// Identity is the caller the credentials resolve to.
type Identity struct {
	Account string `json:"account"`
	ARN     string `json:"arn"`
	UserID  string `json:"user_id"`
}

// Identity verifies the credentials with STS GetCallerIdentity.
func (c *Connector) Identity(ctx context.Context) (Identity, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return Identity{}, err
	}
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

// LoadConfig loads the default SDK configuration for region, optionally from
// a named shared profile.
func LoadConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}
