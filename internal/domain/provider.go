package domain

import "time"

// Provider is a hospital or clinic that owns services.
type Provider struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Location     string    `json:"location,omitempty"`
	WorkingHours string    `json:"working_hours,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ProviderCreateReq struct {
	Name         string `json:"name"`
	Location     string `json:"location,omitempty"`
	WorkingHours string `json:"working_hours,omitempty"`
}
