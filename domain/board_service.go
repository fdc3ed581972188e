package domain

import (
	"context"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// CreateBoardInput is the payload for creating a board.
type CreateBoardInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// UpdateBoardInput changes a board. A nil name keeps the current one; the
// description is always replaced.
type UpdateBoardInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// MemberInput identifies a membership.
type MemberInput struct {
	BoardID string `json:"boardId"`
	UserID  string `json:"userId"`
}

// ChangeRoleInput is the payload for changing a member's role.
type ChangeRoleInput struct {
	BoardID string `json:"boardId"`
	UserID  string `json:"userId"`
	Role    string `json:"role"`
}

// BoardService manages boards and their memberships.
type BoardService struct {
	st    Storage
	auth  Authorizer
	bus   Publisher
	locks Locker
}

func NewBoardService(st Storage, auth Authorizer, bus Publisher, locks Locker) BoardService {
	return BoardService{st: st, auth: auth, bus: bus, locks: locks}
}

// Create stores a board and makes the actor its owner.
func (s BoardService) Create(ctx context.Context, actorID string, in CreateBoardInput) (Board, error) {
	if err := validateLength("board name", in.Name, 1, maxBoardName); err != nil {
		return Board{}, err
	}
	if in.Description != nil {
		if err := validateLength("board description", *in.Description, 0, maxBoardDescription); err != nil {
			return Board{}, err
		}
	}

	now := time.Now().UTC()
	board := Board{
		ID:          newID(),
		Name:        in.Name,
		Description: in.Description,
		OwnerID:     actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.st.InsertBoard(ctx, board); err != nil {
		return Board{}, err
	}
	owner := Member{BoardID: board.ID, UserID: actorID, Role: RoleOwner, CreatedAt: now, UpdatedAt: now}
	if err := s.st.InsertMember(ctx, owner); err != nil {
		return Board{}, err
	}

	s.bus.Publish(board.ID, BoardEvent{Type: BoardCreated, Data: BoardCreatedData{
		BoardID:     board.ID,
		Name:        board.Name,
		Description: board.Description,
		OwnerID:     board.OwnerID,
		Timestamp:   now,
	}})
	return board, nil
}

// Get returns a board the actor is a member of. Boards the actor cannot see
// are reported as missing.
func (s BoardService) Get(ctx context.Context, actorID, boardID string) (Board, error) {
	board, err := s.st.GetBoard(ctx, boardID)
	if err != nil {
		return Board{}, err
	}
	if board == nil {
		return Board{}, newError(ErrNotFound, "board with the given ID not found")
	}
	ok, err := s.auth.HasRole(ctx, boardID, actorID)
	if err != nil {
		return Board{}, err
	}
	if !ok {
		return Board{}, newError(ErrNotFound, "board with the given ID not found")
	}
	return *board, nil
}

// List returns the boards the actor is a member of, oldest first.
func (s BoardService) List(ctx context.Context, actorID string) ([]Board, error) {
	memberships, err := s.st.ListMemberships(ctx, actorID)
	if err != nil {
		return nil, err
	}
	boards := make([]Board, 0, len(memberships))
	for _, m := range memberships {
		b, err := s.st.GetBoard(ctx, m.BoardID)
		if err != nil {
			return nil, err
		}
		if b == nil {
			log.WithFields(log.Fields{"board": m.BoardID, "user": actorID}).Warn("membership references missing board")
			continue
		}
		boards = append(boards, *b)
	}
	sort.Slice(boards, func(i, j int) bool {
		if !boards[i].CreatedAt.Equal(boards[j].CreatedAt) {
			return boards[i].CreatedAt.Before(boards[j].CreatedAt)
		}
		return boards[i].ID < boards[j].ID
	})
	return boards, nil
}

// Update changes a board's name and description.
func (s BoardService) Update(ctx context.Context, actorID, boardID string, in UpdateBoardInput) (Board, error) {
	if in.Name != nil {
		if err := validateLength("board name", *in.Name, 1, maxBoardName); err != nil {
			return Board{}, err
		}
	}
	if in.Description != nil {
		if err := validateLength("board description", *in.Description, 0, maxBoardDescription); err != nil {
			return Board{}, err
		}
	}
	board, err := s.Get(ctx, actorID, boardID)
	if err != nil {
		return Board{}, err
	}
	ok, err := s.auth.HasRole(ctx, boardID, actorID, RoleOwner, RoleModerator)
	if err != nil {
		return Board{}, err
	}
	if !ok {
		return Board{}, errForbidden()
	}

	if in.Name != nil {
		board.Name = *in.Name
	}
	board.Description = in.Description
	board.UpdatedAt = time.Now().UTC()
	if err := s.st.UpdateBoard(ctx, board); err != nil {
		return Board{}, err
	}

	s.bus.Publish(board.ID, BoardEvent{Type: BoardUpdated, Data: BoardUpdatedData{
		BoardID:     board.ID,
		Name:        board.Name,
		Description: board.Description,
		UpdatedBy:   actorID,
		Timestamp:   board.UpdatedAt,
	}})
	return board, nil
}

// Delete removes a board with its columns, tasks and memberships. Only the
// owner may delete a board.
func (s BoardService) Delete(ctx context.Context, actorID, boardID string) error {
	ok, err := s.auth.HasRole(ctx, boardID, actorID, RoleOwner)
	if err != nil {
		return err
	}
	if !ok {
		return errForbidden()
	}

	unlock, err := s.locks.Lock(ctx, columnsLockKey(boardID))
	if err != nil {
		return err
	}
	defer unlock()

	cols, err := s.st.ListColumns(ctx, boardID)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if err := s.deleteColumn(ctx, c); err != nil {
			return err
		}
	}
	members, err := s.st.ListMembers(ctx, boardID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if err := s.st.DeleteMember(ctx, boardID, m.UserID); err != nil {
			return err
		}
	}
	if err := s.st.DeleteBoard(ctx, boardID); err != nil {
		return err
	}

	s.bus.Publish(boardID, BoardEvent{Type: BoardDeleted, Data: BoardDeletedData{
		BoardID:   boardID,
		DeletedBy: actorID,
		Timestamp: time.Now().UTC(),
	}})
	return nil
}

// deleteColumn removes a column and its tasks while holding the column's
// task lock, so no task can be added to it concurrently.
func (s BoardService) deleteColumn(ctx context.Context, c Column) error {
	unlock, err := s.locks.Lock(ctx, tasksLockKey(c.ID))
	if err != nil {
		return err
	}
	defer unlock()
	if err := deleteColumnTasks(ctx, s.st, c); err != nil {
		return err
	}
	return s.st.DeleteColumn(ctx, c.BoardID, c.ID)
}

// Members lists the members of a board.
func (s BoardService) Members(ctx context.Context, actorID, boardID string) ([]Member, error) {
	if err := requireMember(ctx, s.auth, boardID, actorID); err != nil {
		return nil, err
	}
	members, err := s.st.ListMembers(ctx, boardID)
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool {
		if ri, rj := members[i].Role.Rank(), members[j].Role.Rank(); ri != rj {
			return ri > rj
		}
		return members[i].UserID < members[j].UserID
	})
	return members, nil
}

// AddMember adds a user to a board with the member role.
func (s BoardService) AddMember(ctx context.Context, actorID string, in MemberInput) (Member, error) {
	if err := validateID("boardId", in.BoardID); err != nil {
		return Member{}, err
	}
	if err := validateID("userId", in.UserID); err != nil {
		return Member{}, err
	}
	ok, err := s.auth.HasRole(ctx, in.BoardID, actorID, RoleOwner, RoleModerator)
	if err != nil {
		return Member{}, err
	}
	if !ok {
		return Member{}, errForbidden()
	}
	existing, err := s.st.GetMember(ctx, in.BoardID, in.UserID)
	if err != nil {
		return Member{}, err
	}
	if existing != nil {
		return Member{}, newError(ErrConflict, "the specified user is already a member of this board")
	}

	now := time.Now().UTC()
	m := Member{BoardID: in.BoardID, UserID: in.UserID, Role: RoleMember, CreatedAt: now, UpdatedAt: now}
	if err := s.st.InsertMember(ctx, m); err != nil {
		return Member{}, err
	}

	s.bus.Publish(m.BoardID, BoardEvent{Type: MemberAdded, Data: MemberAddedData{
		BoardID:   m.BoardID,
		UserID:    m.UserID,
		Role:      m.Role,
		AddedBy:   actorID,
		Timestamp: now,
	}})
	return m, nil
}

// ChangeRole lets the owner promote or demote another member. The owner role
// cannot be handed out.
func (s BoardService) ChangeRole(ctx context.Context, actorID string, in ChangeRoleInput) (Member, error) {
	if err := validateID("boardId", in.BoardID); err != nil {
		return Member{}, err
	}
	if err := validateID("userId", in.UserID); err != nil {
		return Member{}, err
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return Member{}, newError(ErrValidation, "role must be one of owner, moderator, member")
	}
	if in.UserID == actorID {
		return Member{}, newError(ErrBadRequest, "you cannot change your own role")
	}
	if role == RoleOwner {
		return Member{}, newError(ErrBadRequest, "you cannot assign the owner role to another user")
	}
	ok, err := s.auth.HasRole(ctx, in.BoardID, actorID, RoleOwner)
	if err != nil {
		return Member{}, err
	}
	if !ok {
		return Member{}, errForbidden()
	}
	m, err := s.st.GetMember(ctx, in.BoardID, in.UserID)
	if err != nil {
		return Member{}, err
	}
	if m == nil {
		return Member{}, newError(ErrNotFound, "the specified user is not a member of this board")
	}

	m.Role = role
	m.UpdatedAt = time.Now().UTC()
	if err := s.st.UpdateMember(ctx, *m); err != nil {
		return Member{}, err
	}

	s.bus.Publish(m.BoardID, BoardEvent{Type: MemberRoleChanged, Data: MemberRoleChangedData{
		BoardID:   m.BoardID,
		UserID:    m.UserID,
		Role:      m.Role,
		ChangedBy: actorID,
		Timestamp: m.UpdatedAt,
	}})
	return *m, nil
}

// RemoveMember removes a member whose role ranks below the actor's.
func (s BoardService) RemoveMember(ctx context.Context, actorID string, in MemberInput) error {
	if err := validateID("boardId", in.BoardID); err != nil {
		return err
	}
	if err := validateID("userId", in.UserID); err != nil {
		return err
	}
	if in.UserID == actorID {
		return newError(ErrBadRequest, "you cannot remove yourself from the board")
	}
	ok, err := s.auth.HasRole(ctx, in.BoardID, actorID, RoleOwner, RoleModerator)
	if err != nil {
		return err
	}
	if !ok {
		return errForbidden()
	}
	requester, ok, err := s.auth.RoleOf(ctx, in.BoardID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrForbidden, "you are not a member of this board")
	}
	target, ok, err := s.auth.RoleOf(ctx, in.BoardID, in.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrNotFound, "the specified user is not a member of this board")
	}
	if requester.Rank() <= target.Rank() {
		return newError(ErrForbidden, "you cannot remove a member with equal or higher role")
	}
	if err := s.st.DeleteMember(ctx, in.BoardID, in.UserID); err != nil {
		return err
	}

	s.bus.Publish(in.BoardID, BoardEvent{Type: MemberRemoved, Data: MemberRemovedData{
		BoardID:   in.BoardID,
		UserID:    in.UserID,
		RemovedBy: actorID,
		Timestamp: time.Now().UTC(),
	}})
	return nil
}

// VerifyAccess checks that a board exists and the user may watch it.
func (s BoardService) VerifyAccess(ctx context.Context, boardID, userID string) error {
	board, err := s.st.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if board == nil {
		return newError(ErrNotFound, "board with the given ID not found")
	}
	return requireMember(ctx, s.auth, boardID, userID)
}
