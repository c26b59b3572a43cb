package aws

import (
	"context"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

// ServiceQuotasAPI is the subset of the Service Quotas client the fetcher
// uses.
type ServiceQuotasAPI interface {
	ListServiceQuotas(ctx context.Context, params *servicequotas.ListServiceQuotasInput, optFns ...func(*servicequotas.Options)) (*servicequotas.ListServiceQuotasOutput, error)
}

// appliedQuota is one value reported by Service Quotas.
type appliedQuota struct {
	code  string
	name  string
	value float64
}

// QuotaFetcher reads account-applied quota values from Service Quotas and
// records them as quota overrides on limits.
type QuotaFetcher struct {
	factory        ClientFactory
	client         ServiceQuotasAPI
	maxConcurrency int
	logger         *zap.Logger
}

func NewQuotaFetcher(factory ClientFactory, maxConcurrency int, logger *zap.Logger) *QuotaFetcher {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotaFetcher{
		factory:        factory,
		maxConcurrency: maxConcurrency,
		logger:         logger.Named("servicequotas"),
	}
}

func (f *QuotaFetcher) connect(ctx context.Context) error {
	if f.client != nil {
		return nil
	}
	cfg, err := f.factory.Config(ctx)
	if err != nil {
		return err
	}
	f.client = servicequotas.NewFromConfig(cfg)
	return nil
}

// Apply sets the quota override of every limit Service Quotas reports a value
// for. Limits are matched by quota code, or by case-insensitive quota name
// when the limit has no code. A service code that cannot be listed is logged
// and skipped. It returns the number of limits updated.
func (f *QuotaFetcher) Apply(ctx context.Context, limits []*model.Limit) (int, error) {
	byService := make(map[string][]*model.Limit)
	for _, l := range limits {
		code := l.QuotasServiceCode()
		if code == "" {
			continue
		}
		byService[code] = append(byService[code], l)
	}
	if len(byService) == 0 {
		return 0, nil
	}

	if err := f.connect(ctx); err != nil {
		return 0, err
	}

	codes := make([]string, 0, len(byService))
	for code := range byService {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	fetched := make([][]appliedQuota, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxConcurrency)

	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			quotas, err := f.listQuotas(gctx, code)
			if err != nil {
				f.logger.Warn("Could not list service quotas",
					zap.String("service_code", code),
					zap.String("error_code", checker.APIErrorCode(err)),
					zap.Error(err))
				return nil // Skip services that fail
			}
			fetched[i] = quotas
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	applied := 0
	for i, code := range codes {
		applied += applyQuotas(byService[code], fetched[i])
	}
	f.logger.Debug("Applied service quotas", zap.Int("limits", applied))
	return applied, nil
}

func (f *QuotaFetcher) listQuotas(ctx context.Context, serviceCode string) ([]appliedQuota, error) {
	var quotas []appliedQuota
	paginator := servicequotas.NewListServiceQuotasPaginator(f.client, &servicequotas.ListServiceQuotasInput{
		ServiceCode: aws.String(serviceCode),
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, q := range output.Quotas {
			if q.Value == nil {
				continue
			}
			quotas = append(quotas, appliedQuota{
				code:  aws.ToString(q.QuotaCode),
				name:  aws.ToString(q.QuotaName),
				value: *q.Value,
			})
		}
	}
	return quotas, nil
}

func applyQuotas(limits []*model.Limit, quotas []appliedQuota) int {
	byCode := make(map[string]float64, len(quotas))
	byName := make(map[string]float64, len(quotas))
	for _, q := range quotas {
		byCode[q.code] = q.value
		byName[strings.ToLower(q.name)] = q.value
	}

	applied := 0
	for _, l := range limits {
		var (
			v  float64
			ok bool
		)
		if code := l.QuotaCode(); code != "" {
			v, ok = byCode[code]
		} else {
			v, ok = byName[strings.ToLower(l.Name())]
		}
		if ok {
			l.SetQuotaOverride(v)
			applied++
		}
	}
	return applied
}
