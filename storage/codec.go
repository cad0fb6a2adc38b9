package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

// SnapshotVersion is the envelope version written by Encode.
const SnapshotVersion = 1

var errWrongStageCount = fmt.Errorf("snapshot must hold exactly %d stages", domain.StageCount)

// Codec turns a board into its textual snapshot and back.
type Codec struct {
	// Now supplies the fallback for missing or corrupt timestamps.
	Now func() time.Time
	// NewID mints ids for tasks stored without one.
	NewID  func() string
	Logger *log.Logger
}

// NewCodec returns a codec using the wall clock and random ids.
func NewCodec(logger *log.Logger) *Codec {
	return &Codec{Now: time.Now, NewID: uuid.NewString, Logger: logger}
}

type snapshot struct {
	Version int             `json:"version"`
	SavedAt timestamp       `json:"savedAt"`
	Stages  []snapshotStage `json:"stages"`
}

type snapshotStage struct {
	Title string         `json:"title"`
	Tasks []snapshotTask `json:"tasks"`
}

type snapshotTask struct {
	ID           taskID    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Deadline     timestamp `json:"deadline"`
	CreatedAt    timestamp `json:"createdAt"`
	UpdatedAt    timestamp `json:"updatedAt"`
	ReturnReason *string   `json:"returnReason"`
	IsOverdue    bool      `json:"isOverdue"`
}

// timestamp never fails to unmarshal; unparseable input leaves it unset.
type timestamp struct {
	t  time.Time
	ok bool
}

func stamp(t time.Time) timestamp { return timestamp{t: t, ok: !t.IsZero()} }

func (ts timestamp) MarshalJSON() ([]byte, error) {
	if !ts.ok {
		return []byte("null"), nil
	}
	return sonic.Marshal(ts.t.UTC().Format(time.RFC3339Nano))
}

func (ts *timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := sonic.Unmarshal(b, &s); err != nil {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	ts.t, ts.ok = parsed, true
	return nil
}

func (ts timestamp) or(fallback time.Time) time.Time {
	if ts.ok {
		return ts.t
	}
	return fallback
}

// taskID accepts both string ids and the numeric ids written by the browser board.
type taskID string

func (id *taskID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	switch {
	case raw == "null":
		*id = ""
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := sonic.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = taskID(s)
	default:
		var n float64
		if err := sonic.Unmarshal(b, &n); err != nil {
			return err
		}
		*id = taskID(raw)
	}
	return nil
}

// Encode renders every stage and every task field, absent values included.
func (c *Codec) Encode(b *domain.Board) (string, error) {
	cols := b.Columns()
	snap := snapshot{
		Version: SnapshotVersion,
		SavedAt: stamp(c.now()),
		Stages:  make([]snapshotStage, len(cols)),
	}
	for i, col := range cols {
		tasks := make([]snapshotTask, len(col.Tasks))
		for j, t := range col.Tasks {
			tasks[j] = snapshotTask{
				ID:           taskID(t.ID),
				Title:        t.Title,
				Description:  t.Description,
				Deadline:     stamp(t.Deadline),
				CreatedAt:    stamp(t.CreatedAt),
				UpdatedAt:    stamp(t.UpdatedAt),
				ReturnReason: t.ReturnReason,
				IsOverdue:    t.IsOverdue,
			}
		}
		snap.Stages[i] = snapshotStage{Title: col.Title, Tasks: tasks}
	}
	out, err := sonic.ConfigStd.MarshalToString(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return out, nil
}

// Decode rebuilds a board from a snapshot. It never fails: an absent snapshot
// yields an empty board, a malformed one is reported to the logger and also
// yields an empty board.
func (c *Codec) Decode(data string) *domain.Board {
	b, err := c.Parse(data)
	if err != nil {
		c.logger().WithError(err).Warn("discarding unreadable board snapshot")
		return domain.NewBoard()
	}
	return b
}

// Parse is Decode with structural failures returned instead of logged.
// Timestamps that are missing or corrupt fall back to the current time.
func (c *Codec) Parse(data string) (*domain.Board, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return domain.NewBoard(), nil
	}

	var snap snapshot
	if strings.HasPrefix(data, "[") {
		// bare stage array written before the envelope existed
		if err := sonic.UnmarshalString(data, &snap.Stages); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	} else {
		if err := sonic.UnmarshalString(data, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		if snap.Version > SnapshotVersion {
			return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
		}
		if snap.Stages == nil {
			return nil, errors.New("snapshot has no stages")
		}
	}
	if len(snap.Stages) != domain.StageCount {
		return nil, errWrongStageCount
	}

	now := c.now()
	seen := make(map[string]struct{})
	opts := make([]domain.Option, 0, domain.StageCount)
	for i, st := range snap.Stages {
		tasks := make([]domain.Task, 0, len(st.Tasks))
		for _, raw := range st.Tasks {
			id := string(raw.ID)
			if id == "" {
				id = c.newID()
				c.logger().WithField("stage", i).Warn("snapshot task without id, assigned a new one")
			}
			if _, dup := seen[id]; dup {
				c.logger().WithFields(log.Fields{"task": id, "stage": i}).Warn("dropping duplicate task from snapshot")
				continue
			}
			seen[id] = struct{}{}
			reason := raw.ReturnReason
			if reason != nil && strings.TrimSpace(*reason) == "" {
				reason = nil
			}
			tasks = append(tasks, domain.Task{
				ID:           id,
				Title:        raw.Title,
				Description:  raw.Description,
				Deadline:     raw.Deadline.or(now),
				CreatedAt:    raw.CreatedAt.or(now),
				UpdatedAt:    raw.UpdatedAt.or(now),
				ReturnReason: reason,
				IsOverdue:    raw.IsOverdue,
			})
		}
		opts = append(opts, domain.WithTasks(domain.Stage(i), tasks...))
	}
	return domain.NewBoard(opts...), nil
}

func (c *Codec) now() time.Time {
	if c == nil || c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Codec) newID() string {
	if c == nil || c.NewID == nil {
		return uuid.NewString()
	}
	return c.NewID()
}

func (c *Codec) logger() *log.Logger {
	if c == nil || c.Logger == nil {
		return log.StandardLogger()
	}
	return c.Logger
}
