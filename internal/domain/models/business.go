package models

import "time"

// BusinessContext configures how the assistant behaves for one business.
type BusinessContext struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64"`
	Name           string    `json:"name" gorm:"size:255;not null"`
	Description    string    `json:"description,omitempty" gorm:"type:text"`
	Greeting       string    `json:"greeting,omitempty" gorm:"type:text"`
	Timezone       string    `json:"timezone,omitempty" gorm:"size:64"`
	BookingEnabled bool      `json:"booking_enabled"`
	Active         bool      `json:"active" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName pins the gorm table name.
func (BusinessContext) TableName() string {
	return "business_contexts"
}
