package postgres

import (
	"context"
	"strings"

	"qfree/queue-service/internal/models"
	"qfree/queue-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Store) GetLocation(ctx context.Context, locationID string) (models.Location, bool, error) {
	var location models.Location
	err := s.pool.QueryRow(ctx, `
		SELECT location_id, name, address, opening_time, closing_time, category
		FROM locations
		WHERE location_id = $1
	`, locationID).Scan(&location.ID, &location.Name, &location.Address, &location.OpeningTime, &location.ClosingTime, &location.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Location{}, false, nil
	}
	if err != nil {
		return models.Location{}, false, errors.Wrap(err, "get location")
	}
	return location, true, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	return s.queryLocations(ctx, "", nil)
}

func (s *Store) ListLocationsByCategory(ctx context.Context, category string) ([]models.Location, error) {
	return s.queryLocations(ctx, " WHERE category = $1", []interface{}{category})
}

func (s *Store) queryLocations(ctx context.Context, where string, args []interface{}) ([]models.Location, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT location_id, name, address, opening_time, closing_time, category
		FROM locations`+where+`
		ORDER BY created_seq DESC
	`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list locations")
	}
	defer rows.Close()

	locations := make([]models.Location, 0)
	for rows.Next() {
		var location models.Location
		if err := rows.Scan(&location.ID, &location.Name, &location.Address, &location.OpeningTime, &location.ClosingTime, &location.Category); err != nil {
			return nil, errors.Wrap(err, "scan location")
		}
		locations = append(locations, location)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list locations")
	}
	return locations, nil
}

func (s *Store) CreateLocation(ctx context.Context, input store.CreateLocationInput) (models.Location, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.TrimSpace(input.Category)
	if err := store.Validate(input); err != nil {
		return models.Location{}, err
	}

	location := models.Location{
		ID:          s.newID(),
		Name:        input.Name,
		Address:     input.Address,
		OpeningTime: input.OpeningTime,
		ClosingTime: input.ClosingTime,
		Category:    input.Category,
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO locations (location_id, name, address, opening_time, closing_time, category)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, location.ID, location.Name, location.Address, location.OpeningTime, location.ClosingTime, location.Category); err != nil {
		return models.Location{}, errors.Wrap(err, "insert location")
	}
	return location, nil
}

func (s *Store) ListStaffByLocation(ctx context.Context, locationID string) ([]models.Staff, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT staff_id, location_id, name, role, specialty, status, photo_url
		FROM staff
		WHERE location_id = $1
		ORDER BY created_seq DESC
	`, locationID)
	if err != nil {
		return nil, errors.Wrap(err, "list staff")
	}
	defer rows.Close()

	staff := make([]models.Staff, 0)
	for rows.Next() {
		var member models.Staff
		if err := rows.Scan(&member.ID, &member.LocationID, &member.Name, &member.Role, &member.Specialty, &member.Status, &member.PhotoURL); err != nil {
			return nil, errors.Wrap(err, "scan staff")
		}
		staff = append(staff, member)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list staff")
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

	member := models.Staff{
		ID:         s.newID(),
		Name:       input.Name,
		Role:       input.Role,
		Specialty:  input.Specialty,
		Status:     input.Status,
		PhotoURL:   input.PhotoURL,
		LocationID: input.LocationID,
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO staff (staff_id, location_id, name, role, specialty, status, photo_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, member.ID, member.LocationID, member.Name, member.Role, member.Specialty, member.Status, member.PhotoURL); err != nil {
		return models.Staff{}, errors.Wrap(err, "insert staff")
	}
	return member, nil
}
