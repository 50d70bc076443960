// internal/models/report.go
package models

import (
	"github.com/google/uuid"
)

// Report is a user's flag against a listing (scam, prohibited item,
// wrong category). Reports move through a simple moderation queue:
// pending until someone looks at it, reviewed while being handled,
// resolved when closed.
type Report struct {
	BaseModel
	ListingID   uuid.UUID    `json:"listing_id" gorm:"type:uuid;not null;index"`
	ReporterID  uuid.UUID    `json:"reporter_id" gorm:"type:uuid;not null;index"`
	Reason      string       `json:"reason" gorm:"size:100;not null"`
	Description string       `json:"description,omitempty" gorm:"type:text"`
	Status      ReportStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`

	// Relationships
	Listing  Listing `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
	Reporter User    `json:"reporter,omitempty" gorm:"foreignKey:ReporterID"`
}
