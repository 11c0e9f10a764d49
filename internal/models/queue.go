package models

import "time"

type Person struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
	UserID   *string   `json:"userId,omitempty"`
}

// IsWalkIn reports whether the person was admitted without a registered account.
func (p Person) IsWalkIn() bool {
	return p.UserID == nil || *p.UserID == ""
}

func (p Person) Clone() Person {
	out := p
	if p.UserID != nil {
		userID := *p.UserID
		out.UserID = &userID
	}
	return out
}

type Queue struct {
	ID                        string   `json:"id"`
	Name                      string   `json:"name"`
	LocationID                string   `json:"locationId"`
	AverageServiceTimeMinutes int      `json:"averageServiceTimeMinutes"`
	ManagedByStaffID          *string  `json:"managedByStaffId,omitempty"`
	CurrentlyServing          *Person  `json:"currentlyServing"`
	People                    []Person `json:"people"`
	ImageURL                  string   `json:"imageUrl"`
}

// Clone returns a deep copy; mutating the copy never reaches the original.
func (q Queue) Clone() Queue {
	out := q
	if q.ManagedByStaffID != nil {
		staffID := *q.ManagedByStaffID
		out.ManagedByStaffID = &staffID
	}
	if q.CurrentlyServing != nil {
		serving := q.CurrentlyServing.Clone()
		out.CurrentlyServing = &serving
	}
	out.People = make([]Person, len(q.People))
	for i, person := range q.People {
		out.People[i] = person.Clone()
	}
	return out
}

// HasUser reports whether a waiting person carries the given user id.
func (q Queue) HasUser(userID string) bool {
	for _, person := range q.People {
		if person.UserID != nil && *person.UserID == userID {
			return true
		}
	}
	return false
}

func StringPtr(value string) *string {
	return &value
}
