package domain

import "context"

// Get methods return nil, nil when the record does not exist.

// BoardStore persists boards.
type BoardStore interface {
	InsertBoard(ctx context.Context, b Board) error
	GetBoard(ctx context.Context, id string) (*Board, error)
	UpdateBoard(ctx context.Context, b Board) error
	DeleteBoard(ctx context.Context, id string) error
}

// MemberStore persists board memberships.
type MemberStore interface {
	InsertMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, boardID, userID string) (*Member, error)
	ListMembers(ctx context.Context, boardID string) ([]Member, error)
	ListMemberships(ctx context.Context, userID string) ([]Member, error)
	UpdateMember(ctx context.Context, m Member) error
	DeleteMember(ctx context.Context, boardID, userID string) error
}

// ColumnStore persists columns. ListColumns returns them unsorted.
type ColumnStore interface {
	InsertColumn(ctx context.Context, c Column) error
	GetColumn(ctx context.Context, id string) (*Column, error)
	ListColumns(ctx context.Context, boardID string) ([]Column, error)
	UpdateColumn(ctx context.Context, c Column) error
	DeleteColumn(ctx context.Context, boardID, id string) error
}

// TaskStore persists tasks. ListTasks returns them unsorted.
type TaskStore interface {
	InsertTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, boardID, columnID string) ([]Task, error)
	UpdateTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, boardID, id string) error
}

// Storage is the record store consumed by the board services.
type Storage interface {
	BoardStore
	MemberStore
	ColumnStore
	TaskStore
}
