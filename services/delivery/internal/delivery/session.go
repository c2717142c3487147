package delivery

import (
	"fmt"
	"net/http"
	"strings"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleCourier  Role = "courier"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleCourier, RoleAdmin:
		return true
	}
	return false
}

const (
	HeaderActorID    = "X-Actor-ID"
	HeaderActorName  = "X-Actor-Name"
	HeaderActorPhone = "X-Actor-Phone"
	HeaderActorRole  = "X-Actor-Role"
)

// Session identifies who is acting. It is passed into every engine call;
// nothing below the HTTP layer looks up identity on its own.
type Session struct {
	ActorID string
	Name    string
	Phone   string
	Role    Role
}

func (s Session) Validate() error {
	if strings.TrimSpace(s.ActorID) == "" {
		return fmt.Errorf("%w: missing actor id", ErrForbidden)
	}
	if !s.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrForbidden, s.Role)
	}
	return nil
}

func (s Session) Is(role Role) bool {
	return s.Role == role
}

// SessionFromRequest reads the session headers set by the gateway in front of the apps.
func SessionFromRequest(r *http.Request) (Session, error) {
	s := Session{
		ActorID: strings.TrimSpace(r.Header.Get(HeaderActorID)),
		Name:    strings.TrimSpace(r.Header.Get(HeaderActorName)),
		Phone:   strings.TrimSpace(r.Header.Get(HeaderActorPhone)),
		Role:    Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))),
	}
	if err := s.Validate(); err != nil {
		return Session{}, err
	}
	return s, nil
}
