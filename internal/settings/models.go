package settings

import "time"

// Setting is one persisted client preference.
type Setting struct {
	Name      string    `gorm:"primaryKey;type:varchar(64)" json:"name"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string { return "client_settings" }

const (
	KeyBackendURL      = "backend_url"
	KeyVoice           = "voice"
	KeyPreferredVoices = "preferred_voices"
	KeyAutoSpeak       = "auto_speak"
)
