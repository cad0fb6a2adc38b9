package domain

import (
	"strings"
	"time"
)

// Stage identifies one of the four fixed board columns.
type Stage int

const (
	StagePlanned Stage = iota
	StageInProgress
	StageTesting
	StageDone
)

// StageCount is the number of stages on every board.
const StageCount = 4

var stageTitles = [StageCount]string{
	"Planned",
	"In Progress",
	"Testing",
	"Done",
}

// Valid reports whether s is one of the four board stages.
func (s Stage) Valid() bool {
	return s >= StagePlanned && s <= StageDone
}

// Title returns the display title of the stage.
func (s Stage) Title() string {
	if !s.Valid() {
		return ""
	}
	return stageTitles[s]
}

// Task represents a single unit of work on the board.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	// ReturnReason is set only while the last move was a return to work.
	ReturnReason *string `json:"returnReason"`
	// IsOverdue is frozen when the task reaches Done.
	IsOverdue bool `json:"isOverdue"`
}

// HasReturnReason reports whether the task carries a return reason.
func (t Task) HasReturnReason() bool {
	return t.ReturnReason != nil
}

func (t Task) clone() Task {
	if t.ReturnReason != nil {
		reason := *t.ReturnReason
		t.ReturnReason = &reason
	}
	return t
}

// Column is a stage together with the tasks it holds, in append order.
type Column struct {
	Stage Stage  `json:"stage"`
	Title string `json:"title"`
	Tasks []Task `json:"tasks"`
}

// DeadlineLayout is the date-only form accepted for deadlines.
const DeadlineLayout = "2006-01-02"

// ParseDeadline turns form text into a deadline. Date-only values resolve to
// midnight UTC; full RFC 3339 timestamps are accepted as well.
func ParseDeadline(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, &ValidationError{Field: "deadline", Reason: "deadline is required"}
	}
	if d, err := time.Parse(DeadlineLayout, raw); err == nil {
		return d, nil
	}
	if d, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return d, nil
	}
	return time.Time{}, &ValidationError{Field: "deadline", Reason: "deadline " + raw + " is not a date"}
}

// FormatDeadline renders a deadline in the date-only form used by forms.
func FormatDeadline(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.UTC().Format(DeadlineLayout)
}
