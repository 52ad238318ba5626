package room

import "slices"

// TypingUser is someone currently composing in the open room.
type TypingUser struct {
	UserID   string
	UserName string
}

// typingSet holds at most one entry per user, in arrival order.
type typingSet struct {
	users []TypingUser
}

func (s *typingSet) add(u TypingUser) bool {
	if slices.ContainsFunc(s.users, func(x TypingUser) bool { return x.UserID == u.UserID }) {
		return false
	}
	s.users = append(s.users, u)
	return true
}

func (s *typingSet) remove(userID string) bool {
	n := len(s.users)
	s.users = slices.DeleteFunc(s.users, func(x TypingUser) bool { return x.UserID == userID })
	return len(s.users) != n
}

func (s *typingSet) snapshot() []TypingUser {
	return slices.Clone(s.users)
}

func (s *typingSet) reset() {
	s.users = nil
}
