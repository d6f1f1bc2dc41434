package models

import (
	"time"

	"gorm.io/datatypes"
)

// Mode decides how many models answer each turn
type Mode string

const (
	ModeDirect  Mode = "direct"
	ModeCompare Mode = "compare"
	ModeRandom  Mode = "random"
)

func (m Mode) Valid() bool {
	return m == ModeDirect || m == ModeCompare || m == ModeRandom
}

// Pairwise reports whether turns fan out to two participants
func (m Mode) Pairwise() bool {
	return m == ModeCompare || m == ModeRandom
}

// Session is a chat between a user and one or two models
type Session struct {
	ID        string            `json:"id" gorm:"primaryKey;size:36"`
	UserID    string            `json:"user_id" gorm:"size:64;index"`
	Mode      Mode              `json:"mode" gorm:"size:16;not null"`
	ModelAID  string            `json:"model_a_id" gorm:"size:36;not null"`
	ModelBID  *string           `json:"model_b_id,omitempty" gorm:"size:36"`
	Title     string            `json:"title" gorm:"size:255"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (Session) TableName() string {
	return "chat_sessions"
}
