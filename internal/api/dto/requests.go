// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import "github.com/unifiedui/livechat-service/internal/domain/models"

// SaveBusinessContextRequest is the body of PUT /businesses/{businessId}.
type SaveBusinessContextRequest struct {
	Name           string `json:"name" binding:"required,max=200"`
	Description    string `json:"description" binding:"max=2000"`
	Greeting       string `json:"greeting" binding:"max=2000"`
	Timezone       string `json:"timezone" binding:"max=64"`
	BookingEnabled bool   `json:"booking_enabled"`
	Active         *bool  `json:"active"`
}

// ToModel converts the request into a business context with the given ID.
// Active defaults to true when omitted.
func (r *SaveBusinessContextRequest) ToModel(id string) *models.BusinessContext {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return &models.BusinessContext{
		ID:             id,
		Name:           r.Name,
		Description:    r.Description,
		Greeting:       r.Greeting,
		Timezone:       r.Timezone,
		BookingEnabled: r.BookingEnabled,
		Active:         active,
	}
}

// GetHistoryRequest holds the query parameters of the archived history endpoint.
type GetHistoryRequest struct {
	Limit  int64  `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int64  `form:"offset" binding:"omitempty,min=0"`
	Order  string `form:"order" binding:"omitempty,oneof=asc desc"`
}
