package memory

import (
	"context"
	"strings"

	"qfree/queue-service/internal/models"
	"qfree/queue-service/internal/store"
)

func (s *Store) GetLocation(ctx context.Context, locationID string) (models.Location, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, location := range s.locations {
		if location.ID == locationID {
			return location, true, nil
		}
	}
	return models.Location{}, false, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locations := make([]models.Location, len(s.locations))
	copy(locations, s.locations)
	return locations, nil
}

func (s *Store) ListLocationsByCategory(ctx context.Context, category string) ([]models.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locations := make([]models.Location, 0)
	for _, location := range s.locations {
		if location.Category == category {
			locations = append(locations, location)
		}
	}
	return locations, nil
}

func (s *Store) CreateLocation(ctx context.Context, input store.CreateLocationInput) (models.Location, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.TrimSpace(input.Category)
	if err := store.Validate(input); err != nil {
		return models.Location{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	location := models.Location{
		ID:          s.newID(),
		Name:        input.Name,
		Address:     input.Address,
		OpeningTime: input.OpeningTime,
		ClosingTime: input.ClosingTime,
		Category:    input.Category,
	}
	s.locations = append([]models.Location{location}, s.locations...)
	return location, nil
}

func (s *Store) ListStaffByLocation(ctx context.Context, locationID string) ([]models.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	staff := make([]models.Staff, 0)
	for _, member := range s.staff {
		if member.LocationID == locationID {
			staff = append(staff, member)
		}
	}
	return staff, nil
}

func (s *Store) CreateStaff(ctx context.Context, input store.CreateStaffInput) (models.Staff, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.LocationID = strings.TrimSpace(input.LocationID)
	if input.Status == "" {
		input.Status = models.StaffStatusActive
	}
	if err := store.Validate(input); err != nil {
		return models.Staff{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	member := models.Staff{
		ID:         s.newID(),
		Name:       input.Name,
		Role:       input.Role,
		Specialty:  input.Specialty,
		Status:     input.Status,
		PhotoURL:   input.PhotoURL,
		LocationID: input.LocationID,
	}
	s.staff = append([]models.Staff{member}, s.staff...)
	return member, nil
}
