package models

import (
	"time"

	"gorm.io/datatypes"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Participant tags which branch of a compare turn produced a message
type Participant string

const (
	ParticipantNone Participant = ""
	ParticipantA    Participant = "a"
	ParticipantB    Participant = "b"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

// Terminal reports whether content can no longer change
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Message is a node of the conversation DAG. ChildIDs is a back-reference
// maintained by the store whenever a message names its parents.
type Message struct {
	ID               string                      `json:"id" gorm:"primaryKey;size:36"`
	SessionID        string                      `json:"session_id" gorm:"size:36;not null;uniqueIndex:idx_session_position,priority:1"`
	Position         int64                       `json:"position" gorm:"not null;uniqueIndex:idx_session_position,priority:2"`
	Role             Role                        `json:"role" gorm:"size:16;not null"`
	Content          string                      `json:"content" gorm:"type:text"`
	ParentIDs        datatypes.JSONSlice[string] `json:"parent_ids" gorm:"type:jsonb"`
	ChildIDs         datatypes.JSONSlice[string] `json:"child_ids" gorm:"type:jsonb"`
	Participant      Participant                 `json:"participant,omitempty" gorm:"size:1"`
	ModelID          string                      `json:"model_id,omitempty" gorm:"size:36"`
	Status           Status                      `json:"status" gorm:"size:16;not null;index"`
	FailureReason    string                      `json:"failure_reason,omitempty"`
	PromptTokens     int                         `json:"prompt_tokens"`
	CompletionTokens int                         `json:"completion_tokens"`
	Metadata         datatypes.JSONMap           `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

func (Message) TableName() string {
	return "chat_messages"
}

type RelationType string

const (
	RelationReply  RelationType = "reply"
	RelationBranch RelationType = "branch"
	RelationMerge  RelationType = "merge"
)

// Relation is a typed edge between two messages
type Relation struct {
	ID        uint         `json:"id" gorm:"primaryKey"`
	FromID    string       `json:"from_id" gorm:"size:36;not null;index"`
	ToID      string       `json:"to_id" gorm:"size:36;not null;index"`
	Type      RelationType `json:"type" gorm:"size:16;not null"`
	CreatedAt time.Time    `json:"created_at"`
}

func (Relation) TableName() string {
	return "message_relations"
}

// Usage is the token accounting stored on a finished message
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TreeNode is a message with its reachable children, as returned by GetTree
type TreeNode struct {
	Message  Message     `json:"message"`
	Children []*TreeNode `json:"children"`
}
