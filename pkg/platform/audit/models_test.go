package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "cradle/pkg/domain"
	"cradle/pkg/requestcontext"
)

func establishedCtx(t *testing.T, tenant id.TenantID) context.Context {
	t.Helper()
	return requestcontext.Establish(context.Background(), requestcontext.Metadata{
		RequestID: "req-123",
		TenantID:  tenant,
		ClientIP:  "203.0.113.7",
		UserAgent: "cradle-test/1.0",
	})
}

func TestParseAction(t *testing.T) {
	for _, raw := range []string{
		"create", "read", "update", "delete",
		"login", "logout", "login_failed",
		"export", "import", "grant_access", "revoke_access",
	} {
		a, err := ParseAction(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, raw, a.String())
	}

	for _, raw := range []string{"", "CREATE", "drop", "login-failed", "read "} {
		_, err := ParseAction(raw)
		assert.ErrorIs(t, err, ErrInvalidAction, "raw=%q", raw)
	}
}

func TestParseClassification(t *testing.T) {
	for _, raw := range []string{"public", "internal", "confidential", "restricted"} {
		c, err := ParseClassification(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, raw, c.String())
	}

	_, err := ParseClassification("secret")
	assert.ErrorIs(t, err, ErrInvalidClassification)
}

func TestActionCategory(t *testing.T) {
	assert.Equal(t, CategoryCompliance, ActionDelete.Category())
	assert.Equal(t, CategoryCompliance, ActionExport.Category())
	assert.Equal(t, CategorySecurity, ActionLoginFailed.Category())
	assert.Equal(t, CategorySecurity, ActionLogout.Category())
	assert.Equal(t, CategoryOperations, ActionRead.Category())

	// Unknown actions never panic the routing layer.
	assert.Equal(t, CategoryOperations, Action("bogus").Category())
}

func TestEntryValidate(t *testing.T) {
	valid := Entry{
		ActorID:        "svc-backfill",
		ActorType:      ActorTypeService,
		Action:         ActionUpdate,
		ResourceType:   "user",
		ResourceID:     uuid.NewString(),
		TenantID:       id.TenantID("alpha"),
		Timestamp:      time.Now().UTC(),
		Success:        true,
		Classification: ClassificationInternal,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Entry)
	}{
		{"missing tenant", func(e *Entry) { e.TenantID = "" }},
		{"unknown action", func(e *Entry) { e.Action = "drop_table" }},
		{"unknown actor type", func(e *Entry) { e.ActorType = "robot" }},
		{"unknown classification", func(e *Entry) { e.Classification = "secret" }},
		{"missing resource type", func(e *Entry) { e.ResourceType = "" }},
		{"missing actor", func(e *Entry) { e.ActorID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			assert.ErrorIs(t, e.Validate(), ErrInvalidEntry)
		})
	}
}

func TestFromContext_ResolvedIdentity(t *testing.T) {
	ctx := establishedCtx(t, id.TenantID("alpha"))
	userID := id.NewUserID()
	sessionID := id.NewSessionID()
	require.NoError(t, requestcontext.ResolveIdentity(ctx, requestcontext.Identity{
		UserID:    userID,
		Email:     "ada@example.com",
		Roles:     []string{"admin"},
		SessionID: sessionID,
	}))

	e, err := FromContext(ctx, ActionUpdate, "user", userID.String())
	require.NoError(t, err)

	assert.Equal(t, userID.String(), e.ActorID)
	assert.Equal(t, ActorTypeUser, e.ActorType)
	assert.Equal(t, "203.0.113.7", e.ActorIP)
	assert.Equal(t, id.TenantID("alpha"), e.TenantID)
	assert.Equal(t, "req-123", e.RequestID)
	assert.Equal(t, sessionID.String(), e.SessionID)
	assert.Equal(t, ActionUpdate, e.Action)
	assert.Equal(t, "user", e.ResourceType)
	assert.True(t, e.Success)
	assert.Equal(t, ClassificationInternal, e.Classification)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, time.UTC, e.Timestamp.Location())
}

func TestFromContext_AnonymousBeforeResolution(t *testing.T) {
	ctx := establishedCtx(t, id.TenantID("alpha"))

	e, err := FromContext(ctx, ActionLoginFailed, "user", "ada@example.com",
		WithError("invalid credentials"))
	require.NoError(t, err)

	assert.Equal(t, AnonymousActor, e.ActorID)
	assert.Equal(t, id.TenantID("alpha"), e.TenantID)
	assert.Empty(t, e.SessionID)
	assert.False(t, e.Success)
	assert.Equal(t, "invalid credentials", e.ErrorMessage)
}

func TestFromContext_NoScope(t *testing.T) {
	ctx := context.Background()

	t.Run("fails without explicit tenant", func(t *testing.T) {
		_, err := FromContext(ctx, ActionDelete, "user", "u-1",
			WithActor("svc-cleaner"), WithActorType(ActorTypeService))
		assert.ErrorIs(t, err, ErrMissingContext)
	})

	t.Run("fails without explicit actor", func(t *testing.T) {
		_, err := FromContext(ctx, ActionDelete, "user", "u-1",
			WithTenant(id.TenantID("alpha")))
		assert.ErrorIs(t, err, ErrMissingContext)
	})

	t.Run("fails without resource id", func(t *testing.T) {
		_, err := FromContext(ctx, ActionDelete, "user", "",
			WithTenant(id.TenantID("alpha")), WithActor("svc-cleaner"))
		assert.ErrorIs(t, err, ErrMissingContext)
	})

	t.Run("succeeds fully specified", func(t *testing.T) {
		e, err := FromContext(ctx, ActionDelete, "user", "u-1",
			WithTenant(id.TenantID("alpha")),
			WithActor("svc-cleaner"),
			WithActorType(ActorTypeService))
		require.NoError(t, err)
		assert.Equal(t, id.TenantID("alpha"), e.TenantID)
		assert.Equal(t, "svc-cleaner", e.ActorID)
		assert.Equal(t, ActorTypeService, e.ActorType)
		assert.Empty(t, e.RequestID)
	})
}

func TestFromContext_OptionsOverrideScope(t *testing.T) {
	ctx := establishedCtx(t, id.TenantID("alpha"))
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	e, err := FromContext(ctx, ActionExport, "user", "u-1",
		WithActor("svc-export"),
		WithActorType(ActorTypeSystem),
		WithDetail("nightly export"),
		WithClassification(ClassificationConfidential),
		WithTimestamp(ts),
		WithSession("sess-external"))
	require.NoError(t, err)

	assert.Equal(t, "svc-export", e.ActorID)
	assert.Equal(t, ActorTypeSystem, e.ActorType)
	assert.Equal(t, "nightly export", e.ActionDetail)
	assert.Equal(t, ClassificationConfidential, e.Classification)
	assert.Equal(t, ts, e.Timestamp)
	assert.Equal(t, "sess-external", e.SessionID)
	// Scope-derived fields stay.
	assert.Equal(t, id.TenantID("alpha"), e.TenantID)
	assert.Equal(t, "req-123", e.RequestID)
}

func TestFromContext_ChangeMapsAreCopied(t *testing.T) {
	ctx := establishedCtx(t, id.TenantID("alpha"))

	oldValues := map[string]any{"name": "Ada"}
	newValues := map[string]any{"name": "Ada Lovelace"}

	e, err := FromContext(ctx, ActionUpdate, "user", "u-1",
		WithChange(oldValues, newValues))
	require.NoError(t, err)

	oldValues["name"] = "mutated"
	newValues["injected"] = true

	assert.Equal(t, "Ada", e.OldValues["name"])
	assert.Equal(t, "Ada Lovelace", e.NewValues["name"])
	assert.NotContains(t, e.NewValues, "injected")
}

func TestFromContext_InvalidEntryRejected(t *testing.T) {
	ctx := establishedCtx(t, id.TenantID("alpha"))

	_, err := FromContext(ctx, Action("bogus"), "user", "u-1")
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = FromContext(ctx, ActionRead, "", "u-1")
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestFilterNormalize(t *testing.T) {
	t.Run("defaults limit", func(t *testing.T) {
		f, err := Filter{}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, DefaultQueryLimit, f.Limit)
		assert.Zero(t, f.Offset)
	})

	t.Run("caps limit", func(t *testing.T) {
		f, err := Filter{Limit: 5000}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, MaxQueryLimit, f.Limit)
	})

	t.Run("keeps explicit limit", func(t *testing.T) {
		f, err := Filter{Limit: 25, Offset: 50}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, 25, f.Limit)
		assert.Equal(t, 50, f.Offset)
	})

	t.Run("rejects negative bounds", func(t *testing.T) {
		_, err := Filter{Limit: -1}.Normalize()
		assert.ErrorIs(t, err, ErrInvalidFilter)

		_, err = Filter{Offset: -1}.Normalize()
		assert.ErrorIs(t, err, ErrInvalidFilter)
	})

	t.Run("rejects unknown action", func(t *testing.T) {
		_, err := Filter{Action: "drop"}.Normalize()
		assert.ErrorIs(t, err, ErrInvalidFilter)
	})

	t.Run("rejects inverted window", func(t *testing.T) {
		now := time.Now()
		_, err := Filter{Start: now, End: now.Add(-time.Hour)}.Normalize()
		assert.ErrorIs(t, err, ErrInvalidFilter)
	})
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &PersistenceError{Op: "insert", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insert")
	assert.Contains(t, err.Error(), "connection refused")

	var pe *PersistenceError
	require.ErrorAs(t, error(err), &pe)
	assert.Equal(t, "insert", pe.Op)
}
