package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"board-service/ordering"
)

// CreateColumnInput is the payload for creating a column.
type CreateColumnInput struct {
	Name    string `json:"name"`
	BoardID string `json:"boardId"`
}

// UpdateColumnInput is the payload for renaming a column.
type UpdateColumnInput struct {
	Name string `json:"name"`
}

// ColumnService mutates the columns of a board.
type ColumnService struct {
	st    Storage
	auth  Authorizer
	bus   Publisher
	locks Locker
}

func NewColumnService(st Storage, auth Authorizer, bus Publisher, locks Locker) ColumnService {
	return ColumnService{st: st, auth: auth, bus: bus, locks: locks}
}

// Create appends a column to the end of its board.
func (s ColumnService) Create(ctx context.Context, actorID string, in CreateColumnInput) (Column, error) {
	if err := validateLength("column name", in.Name, 1, maxColumnName); err != nil {
		return Column{}, err
	}
	if err := validateID("boardId", in.BoardID); err != nil {
		return Column{}, err
	}
	board, err := s.st.GetBoard(ctx, in.BoardID)
	if err != nil {
		return Column{}, err
	}
	if board == nil {
		return Column{}, newError(ErrNotFound, "board with the given ID not found")
	}
	if err := s.requireEditor(ctx, board.ID, actorID); err != nil {
		return Column{}, err
	}

	unlock, err := s.locks.Lock(ctx, columnsLockKey(board.ID))
	if err != nil {
		return Column{}, err
	}
	defer unlock()

	siblings, err := s.st.ListColumns(ctx, board.ID)
	if err != nil {
		return Column{}, err
	}
	SortColumns(siblings)
	position := ordering.First()
	if n := len(siblings); n > 0 {
		position, err = ordering.After(siblings[n-1].Position)
		if err != nil {
			return Column{}, internalError("failed to generate position", err)
		}
	}

	now := time.Now().UTC()
	col := Column{
		ID:        newID(),
		BoardID:   board.ID,
		Name:      in.Name,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.st.InsertColumn(ctx, col); err != nil {
		return Column{}, err
	}

	s.bus.Publish(board.ID, BoardEvent{Type: ColumnCreated, Data: ColumnCreatedData{
		ColumnID:  col.ID,
		Name:      col.Name,
		Position:  col.Position,
		BoardID:   col.BoardID,
		CreatedBy: actorID,
		Timestamp: now,
	}})
	return col, nil
}

// Get returns a column visible to the actor.
func (s ColumnService) Get(ctx context.Context, actorID, columnID string) (Column, error) {
	col, err := s.st.GetColumn(ctx, columnID)
	if err != nil {
		return Column{}, err
	}
	if col == nil {
		return Column{}, newError(ErrNotFound, "column with the given ID not found")
	}
	if err := requireMember(ctx, s.auth, col.BoardID, actorID); err != nil {
		return Column{}, err
	}
	return *col, nil
}

// List returns the columns of a board in order.
func (s ColumnService) List(ctx context.Context, actorID, boardID string) ([]Column, error) {
	board, err := s.st.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, newError(ErrNotFound, "board with the given ID not found")
	}
	if err := requireMember(ctx, s.auth, boardID, actorID); err != nil {
		return nil, err
	}
	cols, err := s.st.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	SortColumns(cols)
	return cols, nil
}

// Update renames a column.
func (s ColumnService) Update(ctx context.Context, actorID, columnID string, in UpdateColumnInput) (Column, error) {
	if err := validateLength("column name", in.Name, 1, maxColumnName); err != nil {
		return Column{}, err
	}
	col, err := s.st.GetColumn(ctx, columnID)
	if err != nil {
		return Column{}, err
	}
	if col == nil {
		return Column{}, newError(ErrNotFound, "column with the given ID not found")
	}
	if err := s.requireEditor(ctx, col.BoardID, actorID); err != nil {
		return Column{}, err
	}

	unlock, err := s.locks.Lock(ctx, columnsLockKey(col.BoardID))
	if err != nil {
		return Column{}, err
	}
	defer unlock()

	// Re-read under the lock so a concurrent move's key is not written back.
	col, err = s.st.GetColumn(ctx, columnID)
	if err != nil {
		return Column{}, err
	}
	if col == nil {
		return Column{}, newError(ErrNotFound, "column with the given ID not found")
	}

	col.Name = in.Name
	col.UpdatedAt = time.Now().UTC()
	if err := s.st.UpdateColumn(ctx, *col); err != nil {
		return Column{}, err
	}

	s.bus.Publish(col.BoardID, BoardEvent{Type: ColumnUpdated, Data: ColumnUpdatedData{
		ColumnID:  col.ID,
		Name:      col.Name,
		UpdatedBy: actorID,
		Timestamp: col.UpdatedAt,
	}})
	return *col, nil
}

// Move places a column at target among its siblings. Moving a column to the
// index it already occupies succeeds without publishing anything.
func (s ColumnService) Move(ctx context.Context, actorID, columnID string, target int) (Column, error) {
	col, err := s.st.GetColumn(ctx, columnID)
	if err != nil {
		return Column{}, err
	}
	if col == nil {
		return Column{}, newError(ErrNotFound, "column with the given ID not found")
	}
	if err := s.requireEditor(ctx, col.BoardID, actorID); err != nil {
		return Column{}, err
	}

	unlock, err := s.locks.Lock(ctx, columnsLockKey(col.BoardID))
	if err != nil {
		return Column{}, err
	}
	defer unlock()

	siblings, err := s.st.ListColumns(ctx, col.BoardID)
	if err != nil {
		return Column{}, err
	}
	SortColumns(siblings)

	oldIndex := -1
	others := make([]string, 0, len(siblings))
	for i, c := range siblings {
		if c.ID == col.ID {
			oldIndex = i
			*col = c
			continue
		}
		others = append(others, c.Position)
	}
	if oldIndex < 0 {
		return Column{}, newError(ErrNotFound, "column with the given ID not found")
	}
	if target < 0 || target > len(others) {
		return Column{}, newError(ErrBadRequest, "target position is out of bounds (0 - %d)", len(others))
	}
	if target == oldIndex {
		log.WithFields(log.Fields{"column": col.ID, "index": target}).Debug("column move is a no-op")
		return *col, nil
	}

	position, err := ordering.ForTargetIndex(others, target)
	if err != nil {
		log.WithFields(log.Fields{"column": col.ID, "board": col.BoardID, "target": target}).WithError(err).Error("generate column position")
		return Column{}, internalError("failed to generate position", err)
	}
	col.Position = position
	col.UpdatedAt = time.Now().UTC()
	if err := s.st.UpdateColumn(ctx, *col); err != nil {
		return Column{}, err
	}

	s.bus.Publish(col.BoardID, BoardEvent{Type: ColumnMoved, Data: ColumnMovedData{
		ColumnID:    col.ID,
		OldPosition: oldIndex,
		NewPosition: target,
		MovedBy:     actorID,
		Timestamp:   col.UpdatedAt,
	}})
	return *col, nil
}

// Delete removes a column and its tasks. Siblings keep their keys.
func (s ColumnService) Delete(ctx context.Context, actorID, columnID string) error {
	col, err := s.st.GetColumn(ctx, columnID)
	if err != nil {
		return err
	}
	if col == nil {
		return newError(ErrNotFound, "column with the given ID not found")
	}
	if err := s.requireEditor(ctx, col.BoardID, actorID); err != nil {
		return err
	}

	unlock, err := lockAll(ctx, s.locks, columnsLockKey(col.BoardID), tasksLockKey(col.ID))
	if err != nil {
		return err
	}
	defer unlock()

	if err := deleteColumnTasks(ctx, s.st, *col); err != nil {
		return err
	}
	if err := s.st.DeleteColumn(ctx, col.BoardID, col.ID); err != nil {
		return err
	}

	s.bus.Publish(col.BoardID, BoardEvent{Type: ColumnDeleted, Data: ColumnDeletedData{
		ColumnID:  col.ID,
		DeletedBy: actorID,
		Timestamp: time.Now().UTC(),
	}})
	return nil
}

func (s ColumnService) requireEditor(ctx context.Context, boardID, actorID string) error {
	ok, err := s.auth.HasRole(ctx, boardID, actorID, RoleOwner, RoleModerator)
	if err != nil {
		return err
	}
	if !ok {
		return errForbidden()
	}
	return nil
}

func requireMember(ctx context.Context, auth Authorizer, boardID, actorID string) error {
	ok, err := auth.HasRole(ctx, boardID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return errNoAccess()
	}
	return nil
}

func deleteColumnTasks(ctx context.Context, st Storage, col Column) error {
	tasks, err := st.ListTasks(ctx, col.BoardID, col.ID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := st.DeleteTask(ctx, col.BoardID, t.ID); err != nil {
			return err
		}
	}
	return nil
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
