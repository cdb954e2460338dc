package registry

import "time"

const (
	StatusDisabled = 0
	StatusEnabled  = 1
)

// Provider is an external OpenAI-compatible endpoint plus its credential.
type Provider struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(64);not null" json:"name"`
	BaseURL     string    `gorm:"type:varchar(255);not null" json:"base_url"`
	APIKey      string    `gorm:"type:varchar(255);not null" json:"-"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
	Status      int       `gorm:"type:tinyint;not null;default:1" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Provider) TableName() string { return "api_providers" }

// ModelConfig is a provider-scoped model alias selectable for chat.
type ModelConfig struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProviderID  uint64    `gorm:"index;not null" json:"provider_id"`
	ModelID     string    `gorm:"type:varchar(128);index;not null" json:"model_id"`
	ModelName   string    `gorm:"type:varchar(128);not null" json:"model_name"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
	MaxTokens   int       `gorm:"not null;default:4096" json:"max_tokens"`
	SortOrder   int       `gorm:"not null;default:0" json:"sort_order"`
	Status      int       `gorm:"type:tinyint;not null;default:1" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ModelConfig) TableName() string { return "model_configs" }

// UsableModel is one row of the enabled-models join used by the chat client.
type UsableModel struct {
	ModelID      string `json:"model_id"`
	ModelName    string `json:"model_name"`
	ProviderName string `json:"provider_name"`
}

// Endpoint is a resolved chat target: where to call and with which key.
type Endpoint struct {
	BaseURL   string
	APIKey    string
	ModelID   string
	MaxTokens int
}
