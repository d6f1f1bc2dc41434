package models

import (
	"time"

	ratingmodels "llm-arena/backend/rating/models"
)

// Stage is one rating update a preference drives. Every preference updates
// its own category; one in a specific category also updates overall.
type Stage string

const (
	StageCategory Stage = "category"
	StageOverall  Stage = "overall"
)

// Preference is a user's verdict on one compare turn. RatingApplied flips
// once a worker has claimed the category update, OverallApplied once it has
// claimed the overall one.
type Preference struct {
	ID               string              `json:"id" gorm:"primaryKey;size:36"`
	SessionID        string              `json:"session_id" gorm:"size:36;not null;index"`
	MessageID        *string             `json:"message_id,omitempty" gorm:"size:36"`
	UserID           string              `json:"user_id" gorm:"size:64"`
	ModelAID         string              `json:"model_a_id" gorm:"size:36;not null"`
	ModelBID         string              `json:"model_b_id" gorm:"size:36;not null"`
	PreferredModelID *string             `json:"preferred_model_id,omitempty" gorm:"size:36"`
	Category         string              `json:"category" gorm:"size:64;not null"`
	Result           ratingmodels.Result `json:"result" gorm:"size:16;not null"`
	RatingApplied    bool                `json:"rating_applied" gorm:"not null;default:false;index"`
	OverallApplied   bool                `json:"overall_applied" gorm:"not null;default:false;index"`
	CreatedAt        time.Time           `json:"created_at" gorm:"index"`
}

func (Preference) TableName() string {
	return "preferences"
}

// Stages lists the updates this preference drives, category first
func (p Preference) Stages() []Stage {
	if p.Category == ratingmodels.CategoryOverall {
		return []Stage{StageCategory}
	}
	return []Stage{StageCategory, StageOverall}
}

// CategoryFor is the rating category a stage updates
func (p Preference) CategoryFor(stage Stage) string {
	if stage == StageOverall {
		return ratingmodels.CategoryOverall
	}
	return p.Category
}

func (p Preference) StageApplied(stage Stage) bool {
	if stage == StageOverall {
		return p.OverallApplied || p.Category == ratingmodels.CategoryOverall
	}
	return p.RatingApplied
}

// Settled reports whether every stage has been claimed
func (p Preference) Settled() bool {
	return p.StageApplied(StageCategory) && p.StageApplied(StageOverall)
}

// Outcome is the match this preference feeds to the rating engine. A
// specific category whose overall update is still pending stays out of
// overall.
func (p Preference) Outcome() ratingmodels.Outcome {
	return ratingmodels.Outcome{
		ModelAID:     p.ModelAID,
		ModelBID:     p.ModelBID,
		Result:       p.Result,
		Category:     p.Category,
		OccurredAt:   p.CreatedAt,
		CategoryOnly: !p.StageApplied(StageOverall),
	}
}
