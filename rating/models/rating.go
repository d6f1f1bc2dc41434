package models

import (
	"math"
	"time"
)

const (
	DefaultRating   = 1500
	CategoryOverall = "overall"
)

// Period partitions rating records by time window
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all_time"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime:
		return true
	}
	return false
}

// Window is how far back the period reaches. Zero means unbounded.
func (p Period) Window() time.Duration {
	switch p {
	case PeriodDaily:
		return 24 * time.Hour
	case PeriodWeekly:
		return 7 * 24 * time.Hour
	case PeriodMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Result is the outcome of one pairwise comparison, from A's side
type Result string

const (
	ResultAWins Result = "a_wins"
	ResultBWins Result = "b_wins"
	ResultTie   Result = "tie"
)

func (r Result) Valid() bool {
	return r == ResultAWins || r == ResultBWins || r == ResultTie
}

// Scores maps the result to the actual scores (S_a, S_b)
func (r Result) Scores() (float64, float64) {
	switch r {
	case ResultAWins:
		return 1, 0
	case ResultBWins:
		return 0, 1
	default:
		return 0.5, 0.5
	}
}

// Inverse is the same outcome seen from B's side
func (r Result) Inverse() Result {
	switch r {
	case ResultAWins:
		return ResultBWins
	case ResultBWins:
		return ResultAWins
	}
	return r
}

// OutcomeCounts are counter increments applied alongside a rating change
type OutcomeCounts struct {
	Wins   int
	Losses int
	Ties   int
}

func (c OutcomeCounts) Total() int {
	return c.Wins + c.Losses + c.Ties
}

// Counts returns the counter increments for A and B
func (r Result) Counts() (OutcomeCounts, OutcomeCounts) {
	switch r {
	case ResultAWins:
		return OutcomeCounts{Wins: 1}, OutcomeCounts{Losses: 1}
	case ResultBWins:
		return OutcomeCounts{Losses: 1}, OutcomeCounts{Wins: 1}
	default:
		return OutcomeCounts{Ties: 1}, OutcomeCounts{Ties: 1}
	}
}

// Record is a model's rating within one category and period. Version is
// the optimistic concurrency token; zero means the row was never written.
type Record struct {
	ModelID          string    `json:"model_id" gorm:"primaryKey;size:36"`
	Category         string    `json:"category" gorm:"primaryKey;size:64"`
	Period           Period    `json:"period" gorm:"primaryKey;size:16"`
	Rating           int       `json:"rating" gorm:"not null;default:1500;index"`
	Wins             int       `json:"wins" gorm:"not null;default:0"`
	Losses           int       `json:"losses" gorm:"not null;default:0"`
	Ties             int       `json:"ties" gorm:"not null;default:0"`
	TotalComparisons int       `json:"total_comparisons" gorm:"not null;default:0"`
	Version          int64     `json:"-" gorm:"not null;default:0"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Record) TableName() string {
	return "model_ratings"
}

// NewRecord is the lazily created default for a key
func NewRecord(modelID, category string, period Period) Record {
	return Record{ModelID: modelID, Category: category, Period: period, Rating: DefaultRating}
}

// WinRate is wins over total comparisons as a percentage with two decimals
func (r Record) WinRate() float64 {
	if r.TotalComparisons == 0 {
		return 0
	}
	return math.Round(float64(r.Wins)/float64(r.TotalComparisons)*10000) / 100
}

// Apply adds a rating delta and counter increments
func (r *Record) Apply(delta int, counts OutcomeCounts) {
	r.Rating += delta
	r.Wins += counts.Wins
	r.Losses += counts.Losses
	r.Ties += counts.Ties
	r.TotalComparisons += counts.Total()
}

// Outcome is one pairwise preference fed to the engine
type Outcome struct {
	ModelAID   string    `json:"model_a_id"`
	ModelBID   string    `json:"model_b_id"`
	Result     Result    `json:"result"`
	Category   string    `json:"category"`
	OccurredAt time.Time `json:"occurred_at"`

	// CategoryOnly keeps a specific-category outcome out of overall
	CategoryOnly bool `json:"category_only,omitempty"`
}

// LeaderboardEntry is one ranked row of a leaderboard
type LeaderboardEntry struct {
	Rank             int     `json:"rank"`
	ModelID          string  `json:"model_id"`
	DisplayName      string  `json:"display_name,omitempty"`
	Provider         string  `json:"provider,omitempty"`
	Rating           int     `json:"rating"`
	WinRate          float64 `json:"win_rate"`
	TotalComparisons int     `json:"total_comparisons"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	Ties             int     `json:"ties"`
}
