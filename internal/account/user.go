package account

import (
	"fmt"

	"github.com/google/uuid"
)

// User is a requesting identity, keyed by Login, created lazily on the
// first non-admin request carrying an x-login header.
type User struct {
	UID    string
	Login  string
	Sub    string
	Banned bool

	Limits *Limiter
}

// NewUser constructs a User with Sub defaulting to "base".
func NewUser(login string) (*User, error) {
	if login == "" {
		return nil, fmt.Errorf("account: user login must not be empty")
	}
	return &User{
		UID:    uuid.NewString(),
		Login:  login,
		Sub:    "base",
		Limits: NewLimiter(nil),
	}, nil
}
