package domain

import (
	"time"

	"github.com/bytedance/sonic"
)

// EventType tags a BoardEvent on the wire.
type EventType string

const (
	BoardCreated      EventType = "boardCreated"
	BoardUpdated      EventType = "boardUpdated"
	BoardDeleted      EventType = "boardDeleted"
	MemberAdded       EventType = "memberAdded"
	MemberRoleChanged EventType = "memberRoleChanged"
	MemberRemoved     EventType = "memberRemoved"
	ColumnCreated     EventType = "columnCreated"
	ColumnUpdated     EventType = "columnUpdated"
	ColumnMoved       EventType = "columnMoved"
	ColumnDeleted     EventType = "columnDeleted"
	TaskCreated       EventType = "taskCreated"
	TaskUpdated       EventType = "taskUpdated"
	TaskMoved         EventType = "taskMoved"
	TaskDeleted       EventType = "taskDeleted"
)

// BoardEvent describes one completed mutation of a board.
type BoardEvent struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Publisher fans board events out to live viewers. Publish must not block.
type Publisher interface {
	Publish(boardID string, ev BoardEvent)
}

// EncodeEvent renders ev in its wire format.
func EncodeEvent(ev BoardEvent) ([]byte, error) {
	return sonic.ConfigStd.Marshal(ev)
}

type BoardCreatedData struct {
	BoardID     string    `json:"boardId"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	OwnerID     string    `json:"ownerId"`
	Timestamp   time.Time `json:"timestamp"`
}

type BoardUpdatedData struct {
	BoardID     string    `json:"boardId"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	UpdatedBy   string    `json:"updatedBy"`
	Timestamp   time.Time `json:"timestamp"`
}

type BoardDeletedData struct {
	BoardID   string    `json:"boardId"`
	DeletedBy string    `json:"deletedBy"`
	Timestamp time.Time `json:"timestamp"`
}

type MemberAddedData struct {
	BoardID   string    `json:"boardId"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	AddedBy   string    `json:"addedBy"`
	Timestamp time.Time `json:"timestamp"`
}

type MemberRoleChangedData struct {
	BoardID   string    `json:"boardId"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	ChangedBy string    `json:"changedBy"`
	Timestamp time.Time `json:"timestamp"`
}

type MemberRemovedData struct {
	BoardID   string    `json:"boardId"`
	UserID    string    `json:"userId"`
	RemovedBy string    `json:"removedBy"`
	Timestamp time.Time `json:"timestamp"`
}

type ColumnCreatedData struct {
	ColumnID  string    `json:"columnId"`
	Name      string    `json:"name"`
	Position  string    `json:"position"`
	BoardID   string    `json:"boardId"`
	CreatedBy string    `json:"createdBy"`
	Timestamp time.Time `json:"timestamp"`
}

type ColumnUpdatedData struct {
	ColumnID  string    `json:"columnId"`
	Name      string    `json:"name"`
	UpdatedBy string    `json:"updatedBy"`
	Timestamp time.Time `json:"timestamp"`
}

// ColumnMovedData carries indices, not order keys.
type ColumnMovedData struct {
	ColumnID    string    `json:"columnId"`
	OldPosition int       `json:"oldPosition"`
	NewPosition int       `json:"newPosition"`
	MovedBy     string    `json:"movedBy"`
	Timestamp   time.Time `json:"timestamp"`
}

type ColumnDeletedData struct {
	ColumnID  string    `json:"columnId"`
	DeletedBy string    `json:"deletedBy"`
	Timestamp time.Time `json:"timestamp"`
}

type TaskCreatedData struct {
	TaskID      string    `json:"taskId"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Tags        []string  `json:"tags"`
	Position    string    `json:"position"`
	ColumnID    string    `json:"columnId"`
	CreatedBy   string    `json:"createdBy"`
	Timestamp   time.Time `json:"timestamp"`
}

type TaskUpdatedData struct {
	TaskID      string    `json:"taskId"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Tags        []string  `json:"tags"`
	UpdatedBy   string    `json:"updatedBy"`
	Timestamp   time.Time `json:"timestamp"`
}

// TaskMovedData carries indices, not order keys. OldPosition is the index in
// the source column.
type TaskMovedData struct {
	TaskID      string    `json:"taskId"`
	OldColumnID string    `json:"oldColumnId"`
	NewColumnID string    `json:"newColumnId"`
	OldPosition int       `json:"oldPosition"`
	NewPosition int       `json:"newPosition"`
	MovedBy     string    `json:"movedBy"`
	Timestamp   time.Time `json:"timestamp"`
}

type TaskDeletedData struct {
	TaskID    string    `json:"taskId"`
	DeletedBy string    `json:"deletedBy"`
	Timestamp time.Time `json:"timestamp"`
}
