package domain

import (
	"context"
	"errors"
	"sync"
)

type fakeStore struct {
	mu      sync.Mutex
	boards  map[string]Board
	members map[string]Member
	columns map[string]Column
	tasks   map[string]Task
	writes  int

	// afterGet runs once, outside the store lock, after the first read of
	// the keyed column or task id.
	afterGet map[string]func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		boards:  map[string]Board{},
		members: map[string]Member{},
		columns: map[string]Column{},
		tasks:   map[string]Task{},

		afterGet: map[string]func(){},
	}
}

// onceAfterGet registers fn to run after the next read of id.
func (f *fakeStore) onceAfterGet(id string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterGet[id] = fn
}

func (f *fakeStore) fireAfterGet(id string) {
	f.mu.Lock()
	fn := f.afterGet[id]
	delete(f.afterGet, id)
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func memberKey(boardID, userID string) string { return boardID + "/" + userID }

func (f *fakeStore) InsertBoard(ctx context.Context, b Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.boards[b.ID] = b
	return nil
}

func (f *fakeStore) GetBoard(ctx context.Context, id string) (*Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) UpdateBoard(ctx context.Context, b Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.boards[b.ID] = b
	return nil
}

func (f *fakeStore) DeleteBoard(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	delete(f.boards, id)
	return nil
}

func (f *fakeStore) InsertMember(ctx context.Context, m Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	k := memberKey(m.BoardID, m.UserID)
	if _, exists := f.members[k]; exists {
		return errors.New("member exists")
	}
	f.members[k] = m
	return nil
}

func (f *fakeStore) GetMember(ctx context.Context, boardID, userID string) (*Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[memberKey(boardID, userID)]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (f *fakeStore) ListMembers(ctx context.Context, boardID string) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Member
	for _, m := range f.members {
		if m.BoardID == boardID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) ListMemberships(ctx context.Context, userID string) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Member
	for _, m := range f.members {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateMember(ctx context.Context, m Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.members[memberKey(m.BoardID, m.UserID)] = m
	return nil
}

func (f *fakeStore) DeleteMember(ctx context.Context, boardID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	delete(f.members, memberKey(boardID, userID))
	return nil
}

func (f *fakeStore) InsertColumn(ctx context.Context, c Column) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.columns[c.ID] = c
	return nil
}

func (f *fakeStore) GetColumn(ctx context.Context, id string) (*Column, error) {
	defer f.fireAfterGet(id)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.columns[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) ListColumns(ctx context.Context, boardID string) ([]Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Column
	for _, c := range f.columns {
		if c.BoardID == boardID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateColumn(ctx context.Context, c Column) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.columns[c.ID] = c
	return nil
}

func (f *fakeStore) DeleteColumn(ctx context.Context, boardID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	delete(f.columns, id)
	return nil
}

func (f *fakeStore) InsertTask(ctx context.Context, t Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (*Task, error) {
	defer f.fireAfterGet(id)
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) ListTasks(ctx context.Context, boardID, columnID string) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Task
	for _, t := range f.tasks {
		if t.BoardID == boardID && t.ColumnID == columnID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, t Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, boardID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

type published struct {
	boardID string
	event   BoardEvent
}

type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) Publish(boardID string, ev BoardEvent) {
	b.mu.Lock()
	b.events = append(b.events, published{boardID: boardID, event: ev})
	b.mu.Unlock()
}

func (b *recordingBus) all() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.events...)
}

func (b *recordingBus) last() (published, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return published{}, false
	}
	return b.events[len(b.events)-1], true
}

// seedBoard stores a board with an owner, a moderator and a member.
func seedBoard(st *fakeStore, id string) Board {
	b := Board{ID: id, Name: "board " + id, OwnerID: "owner"}
	st.boards[id] = b
	st.members[memberKey(id, "owner")] = Member{BoardID: id, UserID: "owner", Role: RoleOwner}
	st.members[memberKey(id, "mod")] = Member{BoardID: id, UserID: "mod", Role: RoleModerator}
	st.members[memberKey(id, "member")] = Member{BoardID: id, UserID: "member", Role: RoleMember}
	return b
}

func seedColumn(st *fakeStore, boardID, id, position string) Column {
	c := Column{ID: id, BoardID: boardID, Name: "column " + id, Position: position}
	st.columns[id] = c
	return c
}

func seedTask(st *fakeStore, boardID, columnID, id, position string) Task {
	t := Task{ID: id, BoardID: boardID, ColumnID: columnID, Title: "task " + id, Position: position}
	st.tasks[id] = t
	return t
}

type fixture struct {
	st      *fakeStore
	bus     *recordingBus
	columns ColumnService
	tasks   TaskService
	boards  BoardService
}

func newFixture() fixture {
	st := newFakeStore()
	bus := &recordingBus{}
	auth := NewMemberAuthorizer(st)
	locks := NewLocalLocker()
	return fixture{
		st:      st,
		bus:     bus,
		columns: NewColumnService(st, auth, bus, locks),
		tasks:   NewTaskService(st, auth, bus, locks),
		boards:  NewBoardService(st, auth, bus, locks),
	}
}
