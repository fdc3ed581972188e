package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Role is a board member's role.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// Rank orders roles: owner > moderator > member. Unknown roles rank zero.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleModerator:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// ParseRole accepts a role name in any letter case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.Rank() == 0 {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Board is a Kanban board.
type Board struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Member grants a user a role on a board.
type Member struct {
	BoardID   string    `json:"boardId"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Column is an ordered lane of a board. Position is its order key.
type Column struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Name      string    `json:"name"`
	Position  string    `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Task is an ordered card within a column. Position is its order key.
type Task struct {
	ID          string    `json:"id"`
	ColumnID    string    `json:"columnId"`
	BoardID     string    `json:"boardId"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Tags        []string  `json:"tags"`
	Position    string    `json:"position"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SortColumns orders columns by order key, then id.
func SortColumns(cols []Column) {
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].Position != cols[j].Position {
			return cols[i].Position < cols[j].Position
		}
		return cols[i].ID < cols[j].ID
	})
}

// SortTasks orders tasks by order key, then id.
func SortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Position != tasks[j].Position {
			return tasks[i].Position < tasks[j].Position
		}
		return tasks[i].ID < tasks[j].ID
	})
}
