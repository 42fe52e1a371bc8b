package devices

import (
	"context"

	"notifier/internal/logger"
)

// Service resolves the registration IDs a user can be pushed to. Reads go
// through the cache when one is configured; cache failures degrade to the
// repository instead of failing the lookup.
type Service struct {
	repository Repository
	cache      *Cache
	logger     logger.Logger
}

func NewService(repository Repository, cache *Cache, log logger.Logger) *Service {
	return &Service{
		repository: repository,
		cache:      cache,
		logger:     log,
	}
}

func (s *Service) RegistrationIDs(ctx context.Context, userID string) ([]string, error) {
	if s.cache != nil {
		ids, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.WarnwCtx(ctx, "device cache read failed, falling back to repository",
				"user_id", userID,
				"error", err)
		} else if ids != nil {
			return ids, nil
		}
	}

	found, err := s.repository.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(found))
	for _, device := range found {
		if device.RegistrationID != "" {
			ids = append(ids, device.RegistrationID)
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, ids); err != nil {
			s.logger.WarnwCtx(ctx, "device cache write failed",
				"user_id", userID,
				"error", err)
		}
	}

	return ids, nil
}

func (s *Service) Register(ctx context.Context, device *Device) error {
	if err := s.repository.Insert(ctx, device); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, device.UserID); err != nil {
			s.logger.WarnwCtx(ctx, "device cache invalidation failed",
				"user_id", device.UserID,
				"error", err)
		}
	}
	return nil
}
