package songbook

import "github.com/google/uuid"

type uuidCapableSession interface {
	GetUserUUID() (uuid.UUID, error)
}

// HasUserUUID reports whether the session's user id parses as a UUID.
func HasUserUUID(session Session) bool {
	if session == nil {
		return false
	}

	if s, ok := session.(uuidCapableSession); ok {
		_, err := s.GetUserUUID()
		return err == nil
	}

	_, err := uuid.Parse(session.GetUserID())
	return err == nil
}
