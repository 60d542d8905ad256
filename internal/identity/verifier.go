package identity

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	id "cradle/pkg/domain"
	dErrors "cradle/pkg/domain-errors"
	"cradle/pkg/email"
	"cradle/pkg/platform/sentinel"
)

// UserSource is the lookup the verifier needs; the full user store
// satisfies it.
type UserSource interface {
	FindByEmail(ctx context.Context, tenantID id.TenantID, email string) (*User, error)
}

// Verifier checks submitted credentials against stored users. It is the
// only component that sees plaintext passwords.
type Verifier struct {
	users UserSource
}

func NewVerifier(users UserSource) *Verifier {
	return &Verifier{users: users}
}

// Verify resolves the user by tenant-scoped email and checks the password.
// An unknown email still burns one bcrypt compare so the timing of the
// response does not reveal whether the account exists. Unknown email and
// wrong password return the same unauthorized error; inactive accounts are
// rejected with a distinct forbidden error after the password check.
func (v *Verifier) Verify(ctx context.Context, tenantID id.TenantID, emailAddr, password string) (*User, error) {
	user, err := v.users.FindByEmail(ctx, tenantID, email.Normalize(emailAddr))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}

	if err := VerifyPassword(password, user.PasswordHash); err != nil {
		return nil, err
	}

	if !user.Active {
		return nil, dErrors.New(dErrors.CodeForbidden, "user account is inactive")
	}

	return user, nil
}
