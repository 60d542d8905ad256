package service

import (
	"context"
	"fmt"
	"slices"

	"cradle/internal/identity"
	id "cradle/pkg/domain"
	dErrors "cradle/pkg/domain-errors"
	"cradle/pkg/email"
	audit "cradle/pkg/platform/audit"
	pstrings "cradle/pkg/platform/strings"
	"cradle/pkg/requestcontext"
)

// Get returns one user from the caller's tenant. Reads are not audited.
func (s *Service) Get(ctx context.Context, userID id.UserID) (*identity.User, error) {
	rc, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, rc.TenantID, userID)
	if err != nil {
		return nil, wrapUserErr(err)
	}
	return user, nil
}

// List returns the caller's tenant users ordered by creation time.
func (s *Service) List(ctx context.Context) ([]*identity.User, error) {
	rc, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx, rc.TenantID)
	if err != nil {
		return nil, wrapUserErr(err)
	}
	return users, nil
}

// CreateParams describe an admin-created account. Roles always start as the
// default; grants happen through Update afterwards.
type CreateParams struct {
	Email    string
	FullName string
	Password string
}

// Create adds a user to the caller's tenant and records the creation in the
// same transaction. The audit entry carries a snapshot of the new account
// without password material.
func (s *Service) Create(ctx context.Context, params CreateParams) (*identity.User, error) {
	rc, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(params.Password); err != nil {
		return nil, err
	}
	hash, err := identity.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	var created *identity.User
	err = s.runner.Run(ctx, func(txCtx context.Context) error {
		user, err := identity.NewUser(id.NewUserID(), rc.TenantID, params.Email, params.FullName, hash, nil, requestcontext.Now(txCtx))
		if err != nil {
			return err
		}

		if err := s.users.Create(txCtx, user); err != nil {
			return wrapUserErr(err)
		}

		entry, err := audit.FromContext(txCtx, audit.ActionCreate, "user", user.ID.String(),
			audit.WithChange(nil, map[string]any{
				"email":     user.Email,
				"full_name": user.FullName,
				"roles":     user.Roles,
			}),
		)
		if err != nil {
			return err
		}
		if _, err := s.recorder.Record(txCtx, entry); err != nil {
			return err
		}

		created = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.incrementUsersCreated()
	s.logger.InfoContext(ctx, "user created",
		"user_id", created.ID.String(),
		"tenant_id", created.TenantID.String(),
	)
	return created, nil
}

// UpdateParams patch a user. Nil fields stay untouched; Roles replaces the
// whole set when non-nil.
type UpdateParams struct {
	Email    *string
	FullName *string
	Password *string
	Active   *bool
	Roles    []string
}

// Update applies profile, role, and status changes and records them with
// before/after values covering only the fields that actually changed. A
// patch that changes nothing writes neither the store nor the audit log.
func (s *Service) Update(ctx context.Context, userID id.UserID, params UpdateParams) (*identity.User, error) {
	rc, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}

	var updated *identity.User
	err = s.runner.Run(ctx, func(txCtx context.Context) error {
		user, err := s.users.FindByID(txCtx, rc.TenantID, userID)
		if err != nil {
			return wrapUserErr(err)
		}

		oldValues := make(map[string]any)
		newValues := make(map[string]any)

		if params.Email != nil {
			if err := email.Validate(*params.Email); err != nil {
				return err
			}
			normalized := email.Normalize(*params.Email)
			if normalized != user.Email {
				oldValues["email"] = user.Email
				newValues["email"] = normalized
				user.Email = normalized
			}
		}

		if params.FullName != nil && *params.FullName != user.FullName {
			oldValues["full_name"] = user.FullName
			newValues["full_name"] = *params.FullName
			user.FullName = *params.FullName
		}

		if params.Roles != nil {
			roles := pstrings.DedupeAndTrimLower(params.Roles)
			if len(roles) == 0 {
				return dErrors.New(dErrors.CodeInvalidInput, "roles cannot be empty")
			}
			if !slices.Equal(roles, user.Roles) {
				oldValues["roles"] = append([]string(nil), user.Roles...)
				newValues["roles"] = roles
				user.Roles = roles
			}
		}

		if params.Active != nil && *params.Active != user.Active {
			oldValues["active"] = user.Active
			newValues["active"] = *params.Active
			user.Active = *params.Active
		}

		if params.Password != nil {
			if err := validatePassword(*params.Password); err != nil {
				return err
			}
			hash, err := identity.HashPassword(*params.Password)
			if err != nil {
				return err
			}
			user.PasswordHash = hash
			// The diff records that a rotation happened, never the material.
			newValues["password_changed"] = true
		}

		if len(newValues) == 0 {
			updated = user
			return nil
		}

		user.UpdatedAt = requestcontext.Now(txCtx)
		if err := s.users.Update(txCtx, user); err != nil {
			return wrapUserErr(err)
		}

		entry, err := audit.FromContext(txCtx, audit.ActionUpdate, "user", user.ID.String(),
			audit.WithChange(oldValues, newValues),
		)
		if err != nil {
			return err
		}
		if _, err := s.recorder.Record(txCtx, entry); err != nil {
			return err
		}

		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Deactivate soft-deletes a user. The account stays queryable for audit
// attribution; only the active flag changes. Self-deactivation is rejected
// so a tenant cannot lock out its last admin by accident.
func (s *Service) Deactivate(ctx context.Context, userID id.UserID) error {
	rc, err := callerScope(ctx)
	if err != nil {
		return err
	}
	if rc.UserID == userID {
		return dErrors.New(dErrors.CodeBadRequest, "cannot deactivate your own account")
	}

	return s.runner.Run(ctx, func(txCtx context.Context) error {
		user, err := s.users.FindByID(txCtx, rc.TenantID, userID)
		if err != nil {
			return wrapUserErr(err)
		}
		if !user.Active {
			return dErrors.New(dErrors.CodeConflict, "user is already inactive")
		}

		if err := s.users.Deactivate(txCtx, rc.TenantID, userID, requestcontext.Now(txCtx)); err != nil {
			return wrapUserErr(err)
		}

		entry, err := audit.FromContext(txCtx, audit.ActionDelete, "user", user.ID.String(),
			audit.WithChange(map[string]any{
				"email":     user.Email,
				"full_name": user.FullName,
				"roles":     user.Roles,
				"active":    true,
			}, nil),
		)
		if err != nil {
			return err
		}
		_, err = s.recorder.Record(txCtx, entry)
		return err
	})
}

// Export returns every user in the caller's tenant for compliance export
// and records the export itself. The record is fail-closed: no audit entry,
// no export.
func (s *Service) Export(ctx context.Context) ([]*identity.User, error) {
	rc, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}

	users, err := s.users.List(ctx, rc.TenantID)
	if err != nil {
		return nil, wrapUserErr(err)
	}

	entry, err := audit.FromContext(ctx, audit.ActionExport, "user", "",
		audit.WithDetail(fmt.Sprintf("%d users", len(users))),
		audit.WithClassification(audit.ClassificationConfidential),
	)
	if err != nil {
		return nil, err
	}
	if _, err := s.recorder.Record(ctx, entry); err != nil {
		return nil, err
	}

	return users, nil
}
