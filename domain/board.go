package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Board holds the four stages and the tasks in each of them. A task id lives
// in exactly one stage; moves are remove-then-append so that holds by
// construction.
type Board struct {
	stages [StageCount][]Task
	now    func() time.Time
	newID  func() string
}

// Option configures a Board.
type Option func(*Board)

// WithClock overrides the time source used for timestamps and overdue checks.
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator overrides how new task ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(b *Board) {
		if gen != nil {
			b.newID = gen
		}
	}
}

// WithTasks seeds a stage with tasks, appended in order. Invalid stages are ignored.
func WithTasks(stage Stage, tasks ...Task) Option {
	return func(b *Board) {
		if !stage.Valid() {
			return
		}
		for _, t := range tasks {
			b.stages[stage] = append(b.stages[stage], t.clone())
		}
	}
}

// NewBoard returns a board with four empty stages.
func NewBoard(opts ...Option) *Board {
	b := &Board{now: time.Now, newID: uuid.NewString}
	b.Apply(opts...)
	return b
}

// Apply reconfigures an existing board.
func (b *Board) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(b)
	}
}

// Columns returns a deep copy of every stage for rendering.
func (b *Board) Columns() []Column {
	cols := make([]Column, StageCount)
	for i := range b.stages {
		stage := Stage(i)
		tasks := make([]Task, len(b.stages[i]))
		for j, t := range b.stages[i] {
			tasks[j] = t.clone()
		}
		cols[i] = Column{Stage: stage, Title: stage.Title(), Tasks: tasks}
	}
	return cols
}

// Tasks returns a copy of the tasks in one stage.
func (b *Board) Tasks(stage Stage) []Task {
	if !stage.Valid() {
		return nil
	}
	out := make([]Task, len(b.stages[stage]))
	for i, t := range b.stages[stage] {
		out[i] = t.clone()
	}
	return out
}

// Len returns the number of tasks across all stages.
func (b *Board) Len() int {
	n := 0
	for i := range b.stages {
		n += len(b.stages[i])
	}
	return n
}

// Find returns the task with the given id and the stage holding it.
func (b *Board) Find(id string) (Task, Stage, bool) {
	stage, idx := b.locate(id)
	if idx < 0 {
		return Task{}, stage, false
	}
	return b.stages[stage][idx].clone(), stage, true
}

// Clone returns an independent copy sharing the clock and id generator.
func (b *Board) Clone() *Board {
	c := &Board{now: b.now, newID: b.newID}
	for i := range b.stages {
		if len(b.stages[i]) == 0 {
			continue
		}
		c.stages[i] = make([]Task, len(b.stages[i]))
		for j, t := range b.stages[i] {
			c.stages[i][j] = t.clone()
		}
	}
	return c
}

// CreateTask appends a new task to Planned. Tasks cannot be created in any
// other stage.
func (b *Board) CreateTask(stage Stage, title, description string, deadline time.Time) (Task, error) {
	if stage != StagePlanned {
		return Task{}, &ValidationError{Field: "stage", Reason: "tasks can only be created in " + StagePlanned.Title()}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, &ValidationError{Field: "title", Reason: "title is required"}
	}
	if deadline.IsZero() {
		return Task{}, &ValidationError{Field: "deadline", Reason: "deadline is required"}
	}
	now := b.now()
	t := Task{
		ID:          b.newID(),
		Title:       title,
		Description: strings.TrimSpace(description),
		Deadline:    deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.stages[StagePlanned] = append(b.stages[StagePlanned], t)
	return t.clone(), nil
}

// MoveTask removes the task from its current stage and appends it to target.
// A non-empty reason is stored as the return reason; any other move clears it.
// Returning a task from a later stage to In Progress requires a reason.
// Arriving in Done freezes IsOverdue.
func (b *Board) MoveTask(id string, target Stage, reason string) (Task, error) {
	if !target.Valid() {
		return Task{}, &ValidationError{Field: "stage", Reason: "unknown target stage"}
	}
	from, idx := b.locate(id)
	if idx < 0 {
		return Task{}, &NotFoundError{TaskID: id, Stage: -1}
	}
	reason = strings.TrimSpace(reason)
	if target == StageInProgress && from > StageInProgress && reason == "" {
		return Task{}, &ValidationError{Field: "returnReason", Reason: "a reason is required to return a task to work"}
	}

	t := b.stages[from][idx]
	b.stages[from] = removeAt(b.stages[from], idx)

	now := b.now()
	t.UpdatedAt = now
	if reason != "" {
		t.ReturnReason = &reason
	} else {
		t.ReturnReason = nil
	}
	if target == StageDone {
		t.IsOverdue = t.Deadline.Before(now)
	}
	b.stages[target] = append(b.stages[target], t)
	return t.clone(), nil
}

// EditTask replaces the editable fields of a task in the given stage. The id,
// creation time, return reason and overdue flag are preserved.
func (b *Board) EditTask(id string, stage Stage, title, description string, deadline time.Time) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, &ValidationError{Field: "title", Reason: "title is required"}
	}
	if deadline.IsZero() {
		return Task{}, &ValidationError{Field: "deadline", Reason: "deadline is required"}
	}
	if !stage.Valid() {
		return Task{}, &NotFoundError{TaskID: id, Stage: -1}
	}
	idx := indexOf(b.stages[stage], id)
	if idx < 0 {
		return Task{}, &NotFoundError{TaskID: id, Stage: stage}
	}
	t := &b.stages[stage][idx]
	t.Title = title
	t.Description = strings.TrimSpace(description)
	t.Deadline = deadline
	t.UpdatedAt = b.now()
	return t.clone(), nil
}

// DeleteTask removes the task wherever it is. Unknown ids are ignored so a
// repeated delete is harmless; the result reports whether anything was removed.
func (b *Board) DeleteTask(id string) bool {
	removed := false
	for i := range b.stages {
		if idx := indexOf(b.stages[i], id); idx >= 0 {
			b.stages[i] = removeAt(b.stages[i], idx)
			removed = true
		}
	}
	return removed
}

func (b *Board) locate(id string) (Stage, int) {
	for i := range b.stages {
		if idx := indexOf(b.stages[i], id); idx >= 0 {
			return Stage(i), idx
		}
	}
	return -1, -1
}

func indexOf(tasks []Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func removeAt(tasks []Task, idx int) []Task {
	out := make([]Task, 0, len(tasks)-1)
	out = append(out, tasks[:idx]...)
	return append(out, tasks[idx+1:]...)
}
