package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RepositoryPort defines data access methods for settings.
type RepositoryPort interface {
	All(ctx context.Context, companyID int64) ([]Setting, error)
	Get(ctx context.Context, companyID int64, key string) (string, error)
	Set(ctx context.Context, s Setting) error
}

// Service resolves settings with a Redis read-through cache. A cache miss or a
// Redis outage falls back to the database; the cache is best-effort only.
type Service struct {
	repo   RepositoryPort
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewService builds a Service instance. cache may be nil in tests.
func NewService(repo RepositoryPort, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(companyID int64) string {
	return fmt.Sprintf("settings:%d", companyID)
}

// All returns the company's settings as a key→value map.
func (s *Service) All(ctx context.Context, companyID int64) (map[string]string, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey(companyID)).Bytes()
		if err == nil {
			var cached map[string]string
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}

	entries, err := s.repo.All(ctx, companyID)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(entries))
	for _, e := range entries {
		values[e.Key] = e.Value
	}

	if s.cache != nil {
		if raw, err := json.Marshal(values); err == nil {
			if err := s.cache.Set(ctx, cacheKey(companyID), raw, s.ttl).Err(); err != nil && s.logger != nil {
				s.logger.Warn("settings cache write", slog.Any("error", err))
			}
		}
	}
	return values, nil
}

// Set stores a setting and invalidates the company's cache entry.
func (s *Service) Set(ctx context.Context, setting Setting) error {
	if err := s.repo.Set(ctx, setting); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, cacheKey(setting.CompanyID)).Err(); err != nil && s.logger != nil {
			s.logger.Warn("settings cache invalidate", slog.Any("error", err))
		}
	}
	return nil
}

// Policy resolves the typed billing policy for a company, applying defaults
// for unset or unparseable keys.
func (s *Service) Policy(ctx context.Context, companyID int64) (BillingPolicy, error) {
	values, err := s.All(ctx, companyID)
	if err != nil {
		return BillingPolicy{}, err
	}

	policy := DefaultPolicy()
	policy.InvoicesDueAfterDays = intValue(values, KeyInvoicesDueAfter, policy.InvoicesDueAfterDays)
	policy.QuotesExpireAfterDays = intValue(values, KeyQuotesExpireAfter, policy.QuotesExpireAfterDays)
	policy.GenerateInvoiceNumberForDraft = boolValue(values, KeyGenerateInvoiceDraftNo, policy.GenerateInvoiceNumberForDraft)
	policy.GenerateQuoteNumberForDraft = boolValue(values, KeyGenerateQuoteDraftNo, policy.GenerateQuoteNumberForDraft)
	policy.EnableInvoiceDeletion = boolValue(values, KeyEnableInvoiceDeletion, policy.EnableInvoiceDeletion)
	policy.EnableQuoteDeletion = boolValue(values, KeyEnableQuoteDeletion, policy.EnableQuoteDeletion)
	policy.ReadOnlyToggle = intValue(values, KeyReadOnlyToggle, policy.ReadOnlyToggle)
	policy.DefaultInvoiceTaxRateID = int64Value(values, KeyDefaultInvoiceTaxRate, policy.DefaultInvoiceTaxRateID)
	return policy, nil
}

func intValue(values map[string]string, key string, fallback int) int {
	raw, ok := values[key]
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func int64Value(values map[string]string, key string, fallback int64) int64 {
	raw, ok := values[key]
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func boolValue(values map[string]string, key string, fallback bool) bool {
	raw, ok := values[key]
	if !ok {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
