package domain

import "context"

// Authorizer answers membership questions for a board.
type Authorizer interface {
	// HasRole reports whether userID holds one of roles on the board. With no
	// roles any membership is enough.
	HasRole(ctx context.Context, boardID, userID string, roles ...Role) (bool, error)
	// RoleOf returns the user's role and whether the user is a member at all.
	RoleOf(ctx context.Context, boardID, userID string) (Role, bool, error)
}

// MemberAuthorizer implements Authorizer over a MemberStore.
type MemberAuthorizer struct{ st MemberStore }

func NewMemberAuthorizer(st MemberStore) MemberAuthorizer { return MemberAuthorizer{st: st} }

func (a MemberAuthorizer) HasRole(ctx context.Context, boardID, userID string, roles ...Role) (bool, error) {
	role, ok, err := a.RoleOf(ctx, boardID, userID)
	if err != nil || !ok {
		return false, err
	}
	if len(roles) == 0 {
		return true, nil
	}
	for _, r := range roles {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

func (a MemberAuthorizer) RoleOf(ctx context.Context, boardID, userID string) (Role, bool, error) {
	m, err := a.st.GetMember(ctx, boardID, userID)
	if err != nil {
		return "", false, err
	}
	if m == nil {
		return "", false, nil
	}
	return m.Role, true, nil
}
