package domain

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"board-service/ordering"
)

// CreateTaskInput is the payload for creating a task.
type CreateTaskInput struct {
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ColumnID    string   `json:"columnId"`
}

// UpdateTaskInput changes a task. Nil fields are left untouched.
type UpdateTaskInput struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// TaskService mutates the tasks of a board's columns. Any board member may
// change tasks.
type TaskService struct {
	st    Storage
	auth  Authorizer
	bus   Publisher
	locks Locker
}

func NewTaskService(st Storage, auth Authorizer, bus Publisher, locks Locker) TaskService {
	return TaskService{st: st, auth: auth, bus: bus, locks: locks}
}

// Create appends a task to the end of its column.
func (s TaskService) Create(ctx context.Context, actorID string, in CreateTaskInput) (Task, error) {
	if err := validateLength("task title", in.Title, 1, maxTaskTitle); err != nil {
		return Task{}, err
	}
	if err := validateTags(in.Tags); err != nil {
		return Task{}, err
	}
	if err := validateID("columnId", in.ColumnID); err != nil {
		return Task{}, err
	}
	col, err := s.column(ctx, in.ColumnID, "column with the given ID not found")
	if err != nil {
		return Task{}, err
	}
	if err := requireMember(ctx, s.auth, col.BoardID, actorID); err != nil {
		return Task{}, err
	}

	unlock, err := s.locks.Lock(ctx, tasksLockKey(col.ID))
	if err != nil {
		return Task{}, err
	}
	defer unlock()

	// The column may have been deleted while we waited for the lock.
	if _, err := s.column(ctx, col.ID, "column with the given ID not found"); err != nil {
		return Task{}, err
	}

	siblings, err := s.st.ListTasks(ctx, col.BoardID, col.ID)
	if err != nil {
		return Task{}, err
	}
	SortTasks(siblings)
	position := ordering.First()
	if n := len(siblings); n > 0 {
		position, err = ordering.After(siblings[n-1].Position)
		if err != nil {
			return Task{}, internalError("failed to generate position", err)
		}
	}

	now := time.Now().UTC()
	task := Task{
		ID:          newID(),
		ColumnID:    col.ID,
		BoardID:     col.BoardID,
		Title:       in.Title,
		Description: in.Description,
		Tags:        in.Tags,
		Position:    position,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.st.InsertTask(ctx, task); err != nil {
		return Task{}, err
	}

	s.bus.Publish(col.BoardID, BoardEvent{Type: TaskCreated, Data: TaskCreatedData{
		TaskID:      task.ID,
		Title:       task.Title,
		Description: task.Description,
		Tags:        task.Tags,
		Position:    task.Position,
		ColumnID:    task.ColumnID,
		CreatedBy:   actorID,
		Timestamp:   now,
	}})
	return task, nil
}

// Get returns a task visible to the actor.
func (s TaskService) Get(ctx context.Context, actorID, taskID string) (Task, error) {
	task, err := s.task(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if err := requireMember(ctx, s.auth, task.BoardID, actorID); err != nil {
		return Task{}, err
	}
	return *task, nil
}

// List returns the tasks of a column in order.
func (s TaskService) List(ctx context.Context, actorID, columnID string) ([]Task, error) {
	col, err := s.column(ctx, columnID, "column with the given ID not found")
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.auth, col.BoardID, actorID); err != nil {
		return nil, err
	}
	tasks, err := s.st.ListTasks(ctx, col.BoardID, col.ID)
	if err != nil {
		return nil, err
	}
	SortTasks(tasks)
	return tasks, nil
}

// Update changes the title, description or tags of a task.
func (s TaskService) Update(ctx context.Context, actorID, taskID string, in UpdateTaskInput) (Task, error) {
	if in.Title != nil {
		if err := validateLength("task title", *in.Title, 1, maxTaskTitle); err != nil {
			return Task{}, err
		}
	}
	if err := validateTags(in.Tags); err != nil {
		return Task{}, err
	}
	task, unlock, err := s.lockTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	defer unlock()
	if err := requireMember(ctx, s.auth, task.BoardID, actorID); err != nil {
		return Task{}, err
	}

	if in.Title != nil {
		task.Title = *in.Title
	}
	if in.Description != nil {
		task.Description = in.Description
	}
	if in.Tags != nil {
		task.Tags = in.Tags
	}
	task.UpdatedAt = time.Now().UTC()
	if err := s.st.UpdateTask(ctx, *task); err != nil {
		return Task{}, err
	}

	s.bus.Publish(task.BoardID, BoardEvent{Type: TaskUpdated, Data: TaskUpdatedData{
		TaskID:      task.ID,
		Title:       task.Title,
		Description: task.Description,
		Tags:        task.Tags,
		UpdatedBy:   actorID,
		Timestamp:   task.UpdatedAt,
	}})
	return *task, nil
}

// Move places a task at target within columnID, which may differ from the
// task's current column as long as both columns belong to the same board.
func (s TaskService) Move(ctx context.Context, actorID, taskID, columnID string, target int) (Task, error) {
	task, err := s.task(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	src, err := s.column(ctx, task.ColumnID, "source column with the given ID not found")
	if err != nil {
		return Task{}, err
	}
	dst, err := s.column(ctx, columnID, "target column with the given ID not found")
	if err != nil {
		return Task{}, err
	}
	if src.BoardID != dst.BoardID {
		return Task{}, newError(ErrBadRequest, "cannot move task between columns of different boards")
	}
	if err := requireMember(ctx, s.auth, src.BoardID, actorID); err != nil {
		return Task{}, err
	}

	unlock, err := lockAll(ctx, s.locks, tasksLockKey(src.ID), tasksLockKey(dst.ID))
	if err != nil {
		return Task{}, err
	}
	defer unlock()

	// The task may have moved while we waited for the locks.
	task, err = s.task(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if task.ColumnID != src.ID {
		return Task{}, newError(ErrConflict, "task was moved concurrently, retry the request")
	}
	if dst, err = s.column(ctx, dst.ID, "target column with the given ID not found"); err != nil {
		return Task{}, err
	}

	dstTasks, err := s.st.ListTasks(ctx, dst.BoardID, dst.ID)
	if err != nil {
		return Task{}, err
	}
	SortTasks(dstTasks)
	others := make([]string, 0, len(dstTasks))
	for _, t := range dstTasks {
		if t.ID != task.ID {
			others = append(others, t.Position)
		}
	}

	srcTasks := dstTasks
	if src.ID != dst.ID {
		srcTasks, err = s.st.ListTasks(ctx, src.BoardID, src.ID)
		if err != nil {
			return Task{}, err
		}
		SortTasks(srcTasks)
	}
	oldIndex := 0
	for i, t := range srcTasks {
		if t.ID == task.ID {
			oldIndex = i
			break
		}
	}

	if target < 0 || target > len(others) {
		return Task{}, newError(ErrBadRequest, "target position is out of bounds (0 - %d)", len(others))
	}
	if src.ID == dst.ID && target == oldIndex {
		log.WithFields(log.Fields{"task": task.ID, "index": target}).Debug("task move is a no-op")
		return *task, nil
	}

	position, err := ordering.ForTargetIndex(others, target)
	if err != nil {
		log.WithFields(log.Fields{"task": task.ID, "column": dst.ID, "target": target}).WithError(err).Error("generate task position")
		return Task{}, internalError("failed to generate position", err)
	}
	task.ColumnID = dst.ID
	task.Position = position
	task.UpdatedAt = time.Now().UTC()
	if err := s.st.UpdateTask(ctx, *task); err != nil {
		return Task{}, err
	}

	s.bus.Publish(src.BoardID, BoardEvent{Type: TaskMoved, Data: TaskMovedData{
		TaskID:      task.ID,
		OldColumnID: src.ID,
		NewColumnID: dst.ID,
		OldPosition: oldIndex,
		NewPosition: target,
		MovedBy:     actorID,
		Timestamp:   task.UpdatedAt,
	}})
	return *task, nil
}

// Delete removes a task. Siblings keep their keys.
func (s TaskService) Delete(ctx context.Context, actorID, taskID string) error {
	task, unlock, err := s.lockTask(ctx, taskID)
	if err != nil {
		return err
	}
	defer unlock()
	if err := requireMember(ctx, s.auth, task.BoardID, actorID); err != nil {
		return err
	}
	if err := s.st.DeleteTask(ctx, task.BoardID, task.ID); err != nil {
		return err
	}

	s.bus.Publish(task.BoardID, BoardEvent{Type: TaskDeleted, Data: TaskDeletedData{
		TaskID:    task.ID,
		DeletedBy: actorID,
		Timestamp: time.Now().UTC(),
	}})
	return nil
}

// lockTask takes the lock of the task's column and returns the task as read
// under it. A task that changes column before the lock is granted is
// followed to its new column.
func (s TaskService) lockTask(ctx context.Context, id string) (*Task, func(), error) {
	task, err := s.task(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		unlock, err := s.locks.Lock(ctx, tasksLockKey(task.ColumnID))
		if err != nil {
			return nil, nil, err
		}
		current, err := s.task(ctx, id)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if current.ColumnID == task.ColumnID {
			return current, unlock, nil
		}
		unlock()
		task = current
	}
	return nil, nil, newError(ErrConflict, "task was moved concurrently, retry the request")
}

func (s TaskService) task(ctx context.Context, id string) (*Task, error) {
	task, err := s.st.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, newError(ErrNotFound, "task with the given ID not found")
	}
	return task, nil
}

func (s TaskService) column(ctx context.Context, id, notFound string) (*Column, error) {
	col, err := s.st.GetColumn(ctx, id)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, newError(ErrNotFound, "%s", notFound)
	}
	return col, nil
}
