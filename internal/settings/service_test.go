package settings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memorySettingsRepo struct {
	values map[int64]map[string]string
	reads  int
}

func newMemorySettingsRepo() *memorySettingsRepo {
	return &memorySettingsRepo{values: make(map[int64]map[string]string)}
}

func (r *memorySettingsRepo) All(ctx context.Context, companyID int64) ([]Setting, error) {
	r.reads++
	var out []Setting
	for k, v := range r.values[companyID] {
		out = append(out, Setting{CompanyID: companyID, Key: k, Value: v})
	}
	return out, nil
}

func (r *memorySettingsRepo) Get(ctx context.Context, companyID int64, key string) (string, error) {
	return r.values[companyID][key], nil
}

func (r *memorySettingsRepo) Set(ctx context.Context, s Setting) error {
	if r.values[s.CompanyID] == nil {
		r.values[s.CompanyID] = make(map[string]string)
	}
	r.values[s.CompanyID][s.Key] = s.Value
	return nil
}

func newTestCache(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestPolicyDefaults(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemorySettingsRepo(), nil, time.Minute, nil)

	policy, err := svc.Policy(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 30, policy.InvoicesDueAfterDays)
	require.Equal(t, 15, policy.QuotesExpireAfterDays)
	require.True(t, policy.GenerateInvoiceNumberForDraft)
	require.False(t, policy.EnableInvoiceDeletion)
	require.False(t, policy.ReadOnlyOnSendEnabled())
}

func TestPolicyOverrides(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySettingsRepo()
	svc := NewService(repo, nil, time.Minute, nil)

	require.NoError(t, svc.Set(ctx, Setting{CompanyID: 1, Key: KeyInvoicesDueAfter, Value: "14"}))
	require.NoError(t, svc.Set(ctx, Setting{CompanyID: 1, Key: KeyReadOnlyToggle, Value: "2"}))
	require.NoError(t, svc.Set(ctx, Setting{CompanyID: 1, Key: KeyGenerateInvoiceDraftNo, Value: "false"}))
	require.NoError(t, svc.Set(ctx, Setting{CompanyID: 1, Key: KeyDefaultInvoiceTaxRate, Value: "7"}))

	policy, err := svc.Policy(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 14, policy.InvoicesDueAfterDays)
	require.True(t, policy.ReadOnlyOnSendEnabled())
	require.False(t, policy.GenerateInvoiceNumberForDraft)
	require.Equal(t, int64(7), policy.DefaultInvoiceTaxRateID)
}

func TestPolicyUnparseableValueFallsBack(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySettingsRepo()
	svc := NewService(repo, nil, time.Minute, nil)

	require.NoError(t, svc.Set(ctx, Setting{CompanyID: 1, Key: KeyInvoicesDueAfter, Value: "soon"}))

	policy, err := svc.Policy(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 30, policy.InvoicesDueAfterDays)
}

func TestAllUsesCache(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySettingsRepo()
	svc := NewService(repo, newTestCache(t), time.Minute, nil)

	require.NoError(t, repo.Set(ctx, Setting{CompanyID: 1, Key: KeyQuotesExpireAfter, Value: "7"}))

	first, err := svc.All(ctx, 1)
	require.NoError(t, err)
	second, err := svc.All(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.reads)
}

func TestSetInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySettingsRepo()
	svc := NewService(repo, newTestCache(t), time.Minute, nil)

	_, err := svc.All(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Set(ctx, Setting{CompanyID: 1, Key: KeyEnableInvoiceDeletion, Value: "true"}))

	policy, err := svc.Policy(ctx, 1)
	require.NoError(t, err)
	require.True(t, policy.EnableInvoiceDeletion)
	require.Equal(t, 2, repo.reads)
}
