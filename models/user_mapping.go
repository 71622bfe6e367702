package models

// UserMapping links a provider-native account to an internal user.
// Populated by the identity sync worker from the profile service; the
// webhook pipeline resolves actors against this table.
type UserMapping struct {
	ID               string `gorm:"primaryKey;type:uuid" json:"id"`
	Provider         string `gorm:"index:idx_user_mapping,unique;not null" json:"provider"`
	ExternalUserID   string `gorm:"index:idx_user_mapping,unique;not null" json:"external_user_id"`
	ExternalUsername string `gorm:"index" json:"external_username,omitempty"`
	UserID           string `gorm:"index;not null" json:"user_id"` // internal user id (profile service UUID)

	Timestamps
}
