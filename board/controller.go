package board

import (
	"context"
	"errors"

	"prism-board/domain"
)

// ErrCancelled is returned when the user dismisses a dialog.
var ErrCancelled = errors.New("cancelled")

// DeletePrompt is the question asked before a task is removed.
const DeletePrompt = "Delete task?"

// FormKind selects which form the dialog shows.
type FormKind int

const (
	FormCreate FormKind = iota
	FormEdit
	FormReturn
)

func (k FormKind) String() string {
	switch k {
	case FormCreate:
		return "create"
	case FormEdit:
		return "edit"
	case FormReturn:
		return "return"
	default:
		return "unknown"
	}
}

// FormValues is what a form collects. Deadline is free text accepted by
// domain.ParseDeadline.
type FormValues struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Deadline    string `json:"deadline"`
	Reason      string `json:"reason"`
}

// Dialog is the user-facing side of the board: confirmations and forms.
type Dialog interface {
	Confirm(prompt string) bool
	PromptForm(kind FormKind, current FormValues) (FormValues, bool)
}

// Controller drives the board the way the buttons of the board do.
type Controller struct {
	svc *Service
}

func NewController(svc *Service) *Controller {
	return &Controller{svc: svc}
}

// Service returns the underlying service.
func (c *Controller) Service() *Service {
	return c.svc
}

// Create asks for a new task and adds it to Planned.
func (c *Controller) Create(ctx context.Context, d Dialog) (domain.Task, error) {
	values, ok := d.PromptForm(FormCreate, FormValues{})
	if !ok {
		return domain.Task{}, ErrCancelled
	}
	deadline, err := domain.ParseDeadline(values.Deadline)
	if err != nil {
		return domain.Task{}, err
	}
	return c.svc.CreateTask(ctx, domain.StagePlanned, values.Title, values.Description, deadline)
}

// Edit shows the current values of a task and applies the answer.
func (c *Controller) Edit(ctx context.Context, d Dialog, id string, stage domain.Stage) (domain.Task, error) {
	task, at, ok := c.svc.Find(id)
	if !ok || at != stage {
		return domain.Task{}, &domain.NotFoundError{TaskID: id, Stage: stage}
	}
	current := FormValues{
		Title:       task.Title,
		Description: task.Description,
		Deadline:    domain.FormatDeadline(task.Deadline),
	}
	values, ok := d.PromptForm(FormEdit, current)
	if !ok {
		return domain.Task{}, ErrCancelled
	}
	deadline, err := domain.ParseDeadline(values.Deadline)
	if err != nil {
		return domain.Task{}, err
	}
	return c.svc.EditTask(ctx, id, stage, values.Title, values.Description, deadline)
}

// Advance moves a task one stage forward.
func (c *Controller) Advance(ctx context.Context, id string) (domain.Task, error) {
	_, stage, ok := c.svc.Find(id)
	if !ok {
		return domain.Task{}, &domain.NotFoundError{TaskID: id, Stage: -1}
	}
	if stage == domain.StageDone {
		return domain.Task{}, &domain.ValidationError{Field: "stage", Reason: "task is already done"}
	}
	return c.svc.MoveTask(ctx, id, stage+1, "")
}

// ReturnToWork sends a task under test back to In Progress with a reason.
func (c *Controller) ReturnToWork(ctx context.Context, d Dialog, id string) (domain.Task, error) {
	_, stage, ok := c.svc.Find(id)
	if !ok {
		return domain.Task{}, &domain.NotFoundError{TaskID: id, Stage: -1}
	}
	if stage != domain.StageTesting {
		return domain.Task{}, &domain.ValidationError{Field: "stage", Reason: "only tasks under test can be returned"}
	}
	values, ok := d.PromptForm(FormReturn, FormValues{})
	if !ok {
		return domain.Task{}, ErrCancelled
	}
	return c.svc.MoveTask(ctx, id, domain.StageInProgress, values.Reason)
}

// Delete removes a task after confirmation.
func (c *Controller) Delete(ctx context.Context, d Dialog, id string) error {
	if !d.Confirm(DeletePrompt) {
		return ErrCancelled
	}
	return c.svc.DeleteTask(ctx, id)
}
