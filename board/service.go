package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"prism-board/domain"
	"prism-board/storage"
)

const tracerName = "prism-board/board"

// ErrClosed is returned by mutating calls after Close.
var ErrClosed = errors.New("board closed")

// Service owns the board for the lifetime of the process. Every successful
// mutation is followed by a full snapshot write; write failures are logged and
// never undo the in-memory change.
type Service struct {
	mu       sync.Mutex
	board    *domain.Board
	kv       storage.KV
	codec    *storage.Codec
	key      string
	logger   *log.Logger
	now      func() time.Time
	newID    func() string
	tracer   trace.Tracer
	revision uint64
	changed  chan struct{}
	closed   bool
}

// Option configures a Service.
type Option func(*Service)

// WithKey sets the key the snapshot is stored under.
func WithKey(key string) Option {
	return func(s *Service) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets how task ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Open loads the stored snapshot and returns a service ready for mutations.
// It never fails because of stored data: unreadable or unavailable snapshots
// are logged and the board starts empty.
func Open(ctx context.Context, kv storage.KV, opts ...Option) (*Service, error) {
	if kv == nil {
		return nil, errors.New("board: nil key-value store")
	}
	s := &Service{
		kv:      kv,
		key:     storage.DefaultSnapshotKey,
		logger:  log.StandardLogger(),
		now:     time.Now,
		newID:   uuid.NewString,
		tracer:  otel.Tracer(tracerName),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.codec = &storage.Codec{Now: s.now, NewID: s.newID, Logger: s.logger}

	ctx, span := s.tracer.Start(ctx, "board.Open", trace.WithAttributes(attribute.String("board.key", s.key)))
	defer span.End()

	raw, found, err := kv.Get(ctx, s.key)
	switch {
	case err != nil:
		span.RecordError(err)
		s.logger.WithError(err).WithField("key", s.key).Error("failed to read board snapshot, starting empty")
		s.board = domain.NewBoard()
	case !found:
		s.logger.WithField("key", s.key).Info("no board snapshot stored, starting empty")
		s.board = domain.NewBoard()
	default:
		s.board = s.codec.Decode(raw)
	}
	s.board.Apply(domain.WithClock(s.now), domain.WithIDGenerator(s.newID))
	span.SetAttributes(attribute.Int("board.tasks", s.board.Len()))
	s.logger.WithFields(log.Fields{"key": s.key, "tasks": s.board.Len()}).Info("board loaded")
	return s, nil
}

// Board returns a copy of the current board for rendering.
func (s *Service) Board() []domain.Column {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Columns()
}

// Find returns a copy of one task and its stage.
func (s *Service) Find(id string) (domain.Task, domain.Stage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Find(id)
}

// Snapshot encodes the current board in the stored snapshot format.
func (s *Service) Snapshot() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codec.Encode(s.board)
}

// Revision counts successful mutations since Open.
func (s *Service) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Changed returns a channel closed on the next successful mutation.
func (s *Service) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// CreateTask adds a task to Planned.
func (s *Service) CreateTask(ctx context.Context, stage domain.Stage, title, description string, deadline time.Time) (domain.Task, error) {
	return s.mutate(ctx, "board.CreateTask", []attribute.KeyValue{attribute.Int("board.stage", int(stage))}, func(b *domain.Board) (domain.Task, error) {
		return b.CreateTask(stage, title, description, deadline)
	})
}

// MoveTask moves a task to the target stage, recording reason as its return reason.
func (s *Service) MoveTask(ctx context.Context, id string, target domain.Stage, reason string) (domain.Task, error) {
	attrs := []attribute.KeyValue{attribute.String("board.task", id), attribute.Int("board.target", int(target))}
	return s.mutate(ctx, "board.MoveTask", attrs, func(b *domain.Board) (domain.Task, error) {
		return b.MoveTask(id, target, reason)
	})
}

// EditTask updates a task in the given stage.
func (s *Service) EditTask(ctx context.Context, id string, stage domain.Stage, title, description string, deadline time.Time) (domain.Task, error) {
	attrs := []attribute.KeyValue{attribute.String("board.task", id), attribute.Int("board.stage", int(stage))}
	return s.mutate(ctx, "board.EditTask", attrs, func(b *domain.Board) (domain.Task, error) {
		return b.EditTask(id, stage, title, description, deadline)
	})
}

// DeleteTask removes a task. Deleting an unknown id is not an error.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, "board.DeleteTask", []attribute.KeyValue{attribute.String("board.task", id)}, func(b *domain.Board) (domain.Task, error) {
		if !b.DeleteTask(id) {
			s.logger.WithField("task", id).Debug("delete of unknown task ignored")
		}
		return domain.Task{}, nil
	})
	return err
}

func (s *Service) mutate(ctx context.Context, name string, attrs []attribute.KeyValue, fn func(*domain.Board) (domain.Task, error)) (domain.Task, error) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		span.SetStatus(codes.Error, ErrClosed.Error())
		return domain.Task{}, ErrClosed
	}

	task, err := fn(s.board)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.Task{}, err
	}
	if task.ID != "" {
		span.SetAttributes(attribute.String("board.task", task.ID))
	}
	s.revision++
	close(s.changed)
	s.changed = make(chan struct{})
	s.persist(ctx)
	return task, nil
}

// persist writes the full snapshot. Callers hold s.mu.
func (s *Service) persist(ctx context.Context) bool {
	data, err := s.codec.Encode(s.board)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode board snapshot")
		trace.SpanFromContext(ctx).RecordError(err)
		return false
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		s.logger.WithError(err).WithField("key", s.key).Error("failed to store board snapshot")
		trace.SpanFromContext(ctx).RecordError(err)
		return false
	}
	return true
}

// Close writes a final snapshot and rejects further mutations. Calling it
// again is a no-op.
func (s *Service) Close(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "board.Close")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.persist(ctx) {
		return errors.New("board: final snapshot was not stored")
	}
	s.logger.WithField("tasks", s.board.Len()).Info("board flushed")
	return nil
}
