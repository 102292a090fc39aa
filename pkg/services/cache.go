package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/models"
)

// Cache wraps the optional Redis client. A nil client disables caching;
// every method degrades to a miss or a no-op. Cache failures are logged and
// swallowed: the store is always authoritative and a request must never fail
// because Redis is down.
type Cache struct {
	client      *redis.Client
	baselineTTL time.Duration
	reportTTL   time.Duration
	logger      *zap.Logger
}

func NewCache(client *redis.Client, baselineTTL, reportTTL time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		client:      client,
		baselineTTL: baselineTTL,
		reportTTL:   reportTTL,
		logger:      logger.Named("cache"),
	}
}

func baselineKey(seuID uuid.UUID) string {
	return fmt.Sprintf("enpi:baseline:active:%s", seuID)
}

func reportVersionKey(factory string) string {
	return fmt.Sprintf("enpi:report:version:%s", factory)
}

// GetBaseline returns the cached active baseline for a SEU, or nil on miss.
func (c *Cache) GetBaseline(ctx context.Context, seuID uuid.UUID) *models.Baseline {
	if c.client == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, baselineKey(seuID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("baseline cache read failed", zap.String("seu_id", seuID.String()), zap.Error(err))
		}
		return nil
	}
	var b models.Baseline
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		c.logger.Warn("baseline cache entry corrupt, dropping", zap.String("seu_id", seuID.String()), zap.Error(err))
		c.client.Del(ctx, baselineKey(seuID))
		return nil
	}
	return &b
}

func (c *Cache) SetBaseline(ctx context.Context, b *models.Baseline) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, baselineKey(b.SEUID), string(raw), c.baselineTTL).Err(); err != nil {
		c.logger.Warn("baseline cache write failed", zap.String("seu_id", b.SEUID.String()), zap.Error(err))
	}
}

// InvalidateBaseline drops the cached active baseline after a retrain.
func (c *Cache) InvalidateBaseline(ctx context.Context, seuID uuid.UUID) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, baselineKey(seuID)).Err(); err != nil {
		c.logger.Warn("baseline cache invalidation failed", zap.String("seu_id", seuID.String()), zap.Error(err))
	}
}

// reportKey embeds the factory's cache version, so bumping the version
// orphans every cached report of that factory at once; orphans age out via
// TTL. Enumerating and deleting token keys would race with new writes.
func (c *Cache) reportKey(ctx context.Context, factory, token string) string {
	version := int64(0)
	if v, err := c.client.Get(ctx, reportVersionKey(factory)).Int64(); err == nil {
		version = v
	}
	return fmt.Sprintf("enpi:report:%s:v%d:%s", factory, version, token)
}

// GetReport returns the cached factory report for a period token, or nil.
func (c *Cache) GetReport(ctx context.Context, factory, token string) *models.EnPIReport {
	if c.client == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, c.reportKey(ctx, factory, token)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("report cache read failed", zap.String("factory", factory), zap.Error(err))
		}
		return nil
	}
	var report models.EnPIReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil
	}
	return &report
}

func (c *Cache) SetReport(ctx context.Context, factory, token string, report *models.EnPIReport) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.reportKey(ctx, factory, token), string(raw), c.reportTTL).Err(); err != nil {
		c.logger.Warn("report cache write failed", zap.String("factory", factory), zap.Error(err))
	}
}

// InvalidateReports bumps the factory's report cache version. Called after
// every new performance record so reports never serve stale aggregates.
func (c *Cache) InvalidateReports(ctx context.Context, factory string) {
	if c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, reportVersionKey(factory)).Err(); err != nil {
		c.logger.Warn("report cache invalidation failed", zap.String("factory", factory), zap.Error(err))
	}
}
