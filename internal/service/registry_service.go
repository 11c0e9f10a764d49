package service

import (
	"context"

	"qfree/queue-service/internal/models"
	"qfree/queue-service/internal/store"
)

func (s *QueueService) GetLocation(ctx context.Context, locationID string) (models.Location, bool, error) {
	return s.backend.GetLocation(ctx, locationID)
}

// ListLocations returns every location, or only those in category when set.
func (s *QueueService) ListLocations(ctx context.Context, category string) ([]models.Location, error) {
	if category == "" {
		return s.backend.ListLocations(ctx)
	}
	return s.backend.ListLocationsByCategory(ctx, category)
}

func (s *QueueService) CreateLocation(ctx context.Context, input store.CreateLocationInput) (models.Location, error) {
	location, err := s.backend.CreateLocation(ctx, input)
	s.track("create_location", err)
	return location, err
}

func (s *QueueService) ListStaff(ctx context.Context, locationID string) ([]models.Staff, error) {
	return s.backend.ListStaffByLocation(ctx, locationID)
}

func (s *QueueService) CreateStaff(ctx context.Context, input store.CreateStaffInput) (models.Staff, error) {
	member, err := s.backend.CreateStaff(ctx, input)
	s.track("create_staff", err)
	return member, err
}
