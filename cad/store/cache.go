package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/internal/cache"
	"github.com/BaSui01/agentcad/internal/metrics"
)

// entityCacheTTL bounds how stale a cached entity may be; every write
// path invalidates eagerly, so the TTL is only a backstop.
const entityCacheTTL = 5 * time.Minute

// entityCacheType labels cache hit/miss metrics.
const entityCacheType = "entity"

// AttachCache enables the optional read-through entity cache. Reads
// try the cache first; CreateEntity, UpdateEntity, and DeleteEntity
// invalidate. collector may be nil.
func (s *Store) AttachCache(manager *cache.Manager, collector *metrics.Collector) {
	s.cache = manager
	s.collector = collector
}

func entityCacheKey(entityID string) string {
	return "cad:entity:" + entityID
}

// cachedEntity returns the cached copy of an entity, or nil on miss or
// any cache failure (the store is always authoritative).
func (s *Store) cachedEntity(ctx context.Context, entityID string) *model.Entity {
	if s.cache == nil {
		return nil
	}
	var e model.Entity
	if err := s.cache.GetJSON(ctx, entityCacheKey(entityID), &e); err != nil {
		if !cache.IsCacheMiss(err) {
			s.logger.Debug("entity cache read failed", zap.String("entity_id", entityID), zap.Error(err))
		}
		if s.collector != nil {
			s.collector.RecordCacheMiss(entityCacheType)
		}
		return nil
	}
	if s.collector != nil {
		s.collector.RecordCacheHit(entityCacheType)
	}
	return &e
}

func (s *Store) cacheEntity(ctx context.Context, e *model.Entity) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, entityCacheKey(e.EntityID), e, entityCacheTTL); err != nil {
		s.logger.Debug("entity cache write failed", zap.String("entity_id", e.EntityID), zap.Error(err))
	}
}

func (s *Store) invalidateEntity(ctx context.Context, entityID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, entityCacheKey(entityID)); err != nil {
		s.logger.Debug("entity cache invalidation failed", zap.String("entity_id", entityID), zap.Error(err))
	}
}
