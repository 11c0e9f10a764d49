package models

const CategoryHospital = "hospital"

type Location struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	OpeningTime string `json:"openingTime"`
	ClosingTime string `json:"closingTime"`
	Category    string `json:"category"`
}

type Staff struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Specialty  string `json:"specialty"`
	Status     string `json:"status"`
	PhotoURL   string `json:"photoUrl"`
	LocationID string `json:"locationId"`
}

const (
	StaffStatusActive  = "Active"
	StaffStatusOnCall  = "On Call"
	StaffStatusOffline = "Offline"
)
