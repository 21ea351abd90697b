package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// App is a merchant tenant of the gateway, identified by its API key.
// Apps are seeded out-of-band; this service never creates, edits, or
// deletes them over HTTP.
type App struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primary_key"`
	Name      string      `json:"name" gorm:"size:100;not null;uniqueIndex:uq_apps_name"`
	APIKey    string      `json:"-" gorm:"size:128;not null;uniqueIndex:uq_apps_api_key"`
	IsActive  bool        `json:"isActive" gorm:"not null;default:true"`
	NotifyURL null.String `json:"notifyUrl,omitempty" gorm:"size:2048"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func (App) TableName() string { return "apps" }
