package storage

import (
	"context"
	"sync"

	"board-service/domain"
)

// Memory is an in-process record store for tests and local development.
type Memory struct {
	mu      sync.RWMutex
	boards  map[string]domain.Board
	members map[memberKey]domain.Member
	columns map[string]domain.Column
	tasks   map[string]domain.Task
}

type memberKey struct{ board, user string }

func NewMemory() *Memory {
	return &Memory{
		boards:  make(map[string]domain.Board),
		members: make(map[memberKey]domain.Member),
		columns: make(map[string]domain.Column),
		tasks:   make(map[string]domain.Task),
	}
}

func errExists() error {
	return &domain.Error{Kind: domain.ErrConflict, Message: "record already exists"}
}

func errMissing() error {
	return &domain.Error{Kind: domain.ErrNotFound, Message: "record not found"}
}

func (m *Memory) InsertBoard(ctx context.Context, b domain.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.boards[b.ID]; ok {
		return errExists()
	}
	m.boards[b.ID] = b
	return nil
}

func (m *Memory) GetBoard(ctx context.Context, id string) (*domain.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.boards[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) UpdateBoard(ctx context.Context, b domain.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.boards[b.ID]; !ok {
		return errMissing()
	}
	m.boards[b.ID] = b
	return nil
}

func (m *Memory) DeleteBoard(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.boards, id)
	return nil
}

func (m *Memory) InsertMember(ctx context.Context, mem domain.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey{mem.BoardID, mem.UserID}
	if _, ok := m.members[k]; ok {
		return errExists()
	}
	m.members[k] = mem
	return nil
}

func (m *Memory) GetMember(ctx context.Context, boardID, userID string) (*domain.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[memberKey{boardID, userID}]
	if !ok {
		return nil, nil
	}
	return &mem, nil
}

func (m *Memory) ListMembers(ctx context.Context, boardID string) ([]domain.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Member
	for k, mem := range m.members {
		if k.board == boardID {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *Memory) ListMemberships(ctx context.Context, userID string) ([]domain.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Member
	for k, mem := range m.members {
		if k.user == userID {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *Memory) UpdateMember(ctx context.Context, mem domain.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey{mem.BoardID, mem.UserID}
	if _, ok := m.members[k]; !ok {
		return errMissing()
	}
	m.members[k] = mem
	return nil
}

func (m *Memory) DeleteMember(ctx context.Context, boardID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, memberKey{boardID, userID})
	return nil
}

func (m *Memory) InsertColumn(ctx context.Context, c domain.Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.columns[c.ID]; ok {
		return errExists()
	}
	m.columns[c.ID] = c
	return nil
}

func (m *Memory) GetColumn(ctx context.Context, id string) (*domain.Column, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.columns[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Column
	for _, c := range m.columns {
		if c.BoardID == boardID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) UpdateColumn(ctx context.Context, c domain.Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.columns[c.ID]; !ok {
		return errMissing()
	}
	m.columns[c.ID] = c
	return nil
}

func (m *Memory) DeleteColumn(ctx context.Context, boardID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.columns[id]; ok && c.BoardID == boardID {
		delete(m.columns, id)
	}
	return nil
}

func (m *Memory) InsertTask(ctx context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return errExists()
	}
	m.tasks[t.ID] = cloneTask(t)
	return nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	t = cloneTask(t)
	return &t, nil
}

func (m *Memory) ListTasks(ctx context.Context, boardID, columnID string) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Task
	for _, t := range m.tasks {
		if t.BoardID == boardID && t.ColumnID == columnID {
			out = append(out, cloneTask(t))
		}
	}
	return out, nil
}

func (m *Memory) UpdateTask(ctx context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return errMissing()
	}
	m.tasks[t.ID] = cloneTask(t)
	return nil
}

func (m *Memory) DeleteTask(ctx context.Context, boardID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok && t.BoardID == boardID {
		delete(m.tasks, id)
	}
	return nil
}

func cloneTask(t domain.Task) domain.Task {
	if t.Tags != nil {
		t.Tags = append([]string(nil), t.Tags...)
	}
	return t
}

var _ domain.Storage = (*Memory)(nil)
