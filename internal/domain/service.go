package domain

import "time"

// Service is one queueing line (a hospital department). The active flag
// gates token issuance; everything else about it is plain record keeping.
type Service struct {
	ID          int64     `json:"id"`
	ProviderID  *int64    `json:"provider_id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type ServiceCreateReq struct {
	ProviderID  *int64 `json:"provider_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
