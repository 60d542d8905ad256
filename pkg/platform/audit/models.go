package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "cradle/pkg/domain"
	"cradle/pkg/requestcontext"
)

// Action is the closed set of auditable verbs. Parsing and validation happen
// at construction; nothing downstream re-checks free-form strings.
type Action string

const (
	ActionCreate       Action = "create"
	ActionRead         Action = "read"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionLogin        Action = "login"
	ActionLogout       Action = "logout"
	ActionLoginFailed  Action = "login_failed"
	ActionExport       Action = "export"
	ActionImport       Action = "import"
	ActionGrantAccess  Action = "grant_access"
	ActionRevokeAccess Action = "revoke_access"
)

var validActions = map[Action]struct{}{
	ActionCreate:       {},
	ActionRead:         {},
	ActionUpdate:       {},
	ActionDelete:       {},
	ActionLogin:        {},
	ActionLogout:       {},
	ActionLoginFailed:  {},
	ActionExport:       {},
	ActionImport:       {},
	ActionGrantAccess:  {},
	ActionRevokeAccess: {},
}

// ParseAction validates an action string at a trust boundary.
func ParseAction(raw string) (Action, error) {
	a := Action(raw)
	if !a.IsValid() {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidAction, raw)
	}
	return a, nil
}

func (a Action) IsValid() bool {
	_, ok := validActions[a]
	return ok
}

func (a Action) String() string { return string(a) }

// Category classifies actions for downstream routing: metric labels and
// SIEM forwarding severity. It is derived, never stored.
type Category string

const (
	// CategoryCompliance covers actions with legal/regulatory significance
	// that change or move data. These require long retention.
	CategoryCompliance Category = "compliance"

	// CategorySecurity covers authentication activity feeding SIEM systems
	// and alerting pipelines.
	CategorySecurity Category = "security"

	// CategoryOperations covers routine access useful for debugging.
	CategoryOperations Category = "operations"
)

var actionCategories = map[Action]Category{
	ActionCreate:       CategoryCompliance,
	ActionUpdate:       CategoryCompliance,
	ActionDelete:       CategoryCompliance,
	ActionExport:       CategoryCompliance,
	ActionImport:       CategoryCompliance,
	ActionGrantAccess:  CategoryCompliance,
	ActionRevokeAccess: CategoryCompliance,

	ActionLogin:       CategorySecurity,
	ActionLogout:      CategorySecurity,
	ActionLoginFailed: CategorySecurity,

	ActionRead: CategoryOperations,
}

// Category returns the routing category for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() Category {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Classification is the sensitivity tag on an entry.
type Classification string

const (
	ClassificationPublic       Classification = "public"
	ClassificationInternal     Classification = "internal"
	ClassificationConfidential Classification = "confidential"
	ClassificationRestricted   Classification = "restricted"
)

var validClassifications = map[Classification]struct{}{
	ClassificationPublic:       {},
	ClassificationInternal:     {},
	ClassificationConfidential: {},
	ClassificationRestricted:   {},
}

// ParseClassification validates a classification string at a trust boundary.
func ParseClassification(raw string) (Classification, error) {
	c := Classification(raw)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: unknown classification %q", ErrInvalidClassification, raw)
	}
	return c, nil
}

func (c Classification) IsValid() bool {
	_, ok := validClassifications[c]
	return ok
}

func (c Classification) String() string { return string(c) }

// ActorType distinguishes the kind of principal behind an entry.
type ActorType string

const (
	ActorTypeUser    ActorType = "user"
	ActorTypeService ActorType = "service"
	ActorTypeSystem  ActorType = "system"
)

var validActorTypes = map[ActorType]struct{}{
	ActorTypeUser:    {},
	ActorTypeService: {},
	ActorTypeSystem:  {},
}

func (t ActorType) IsValid() bool {
	_, ok := validActorTypes[t]
	return ok
}

// AnonymousActor is recorded when a request context exists but identity
// resolution has not run (pre-auth actions such as failed logins).
const AnonymousActor = "anonymous"

// Entry is one recorded action, immutable after construction. Submit it to
// exactly one Logger; stores never update or delete committed entries.
type Entry struct {
	// ID is assigned by the store on Log when zero.
	ID uuid.UUID `json:"id"`

	// Who.
	ActorID   string    `json:"actor_id"`
	ActorType ActorType `json:"actor_type"`
	ActorIP   string    `json:"actor_ip,omitempty"`

	// Did what.
	Action       Action `json:"action"`
	ActionDetail string `json:"action_detail,omitempty"`

	// To what.
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`

	// Request context.
	TenantID  id.TenantID `json:"tenant_id"`
	RequestID string      `json:"request_id,omitempty"`
	SessionID string      `json:"session_id,omitempty"`

	// When: capture-time wall clock (UTC). Monotonicity across entries is
	// not guaranteed; query ordering adds an insertion-sequence tiebreak.
	Timestamp time.Time `json:"timestamp"`

	// Result.
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Before/after diffs for mutations.
	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`

	Classification Classification `json:"data_classification"`
}

// Validate enforces the construction invariants. Stores call it after
// defaulting the id and timestamp; hand-built entries should call it before
// submission.
func (e Entry) Validate() error {
	if e.TenantID.IsZero() {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidEntry)
	}
	if !e.Action.IsValid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, string(e.Action))
	}
	if !e.ActorType.IsValid() {
		return fmt.Errorf("%w: unknown actor type %q", ErrInvalidEntry, string(e.ActorType))
	}
	if !e.Classification.IsValid() {
		return fmt.Errorf("%w: unknown classification %q", ErrInvalidEntry, string(e.Classification))
	}
	if e.ResourceType == "" {
		return fmt.Errorf("%w: resource type is required", ErrInvalidEntry)
	}
	if e.ActorID == "" {
		return fmt.Errorf("%w: actor id is required", ErrInvalidEntry)
	}
	return nil
}

// Option overlays an explicit field over the context-derived defaults.
// Explicit values win.
type Option func(*Entry)

// WithDetail sets the free-text action detail.
func WithDetail(detail string) Option {
	return func(e *Entry) { e.ActionDetail = detail }
}

// WithActor overrides the actor id derived from the request context. Used by
// background jobs and by admin flows acting on another principal's behalf.
func WithActor(actorID string) Option {
	return func(e *Entry) { e.ActorID = actorID }
}

// WithActorType overrides the default ActorTypeUser.
func WithActorType(t ActorType) Option {
	return func(e *Entry) { e.ActorType = t }
}

// WithActorIP sets the actor IP when it cannot come from the context.
func WithActorIP(ip string) Option {
	return func(e *Entry) { e.ActorIP = ip }
}

// WithTenant supplies the tenant explicitly. Mandatory when constructing
// without an ambient request context; never defaulted.
func WithTenant(tenant id.TenantID) Option {
	return func(e *Entry) { e.TenantID = tenant }
}

// WithSession sets the session id when it cannot come from the context.
func WithSession(sessionID string) Option {
	return func(e *Entry) { e.SessionID = sessionID }
}

// WithTimestamp overrides the capture time. Tests and backfills only.
func WithTimestamp(t time.Time) Option {
	return func(e *Entry) { e.Timestamp = t }
}

// WithChange attaches before/after value maps for mutation diffs.
func WithChange(oldValues, newValues map[string]any) Option {
	return func(e *Entry) {
		e.OldValues = cloneValues(oldValues)
		e.NewValues = cloneValues(newValues)
	}
}

// WithError marks the entry failed and records the reason.
func WithError(msg string) Option {
	return func(e *Entry) {
		e.Success = false
		e.ErrorMessage = msg
	}
}

// WithSuccess sets the result flag explicitly.
func WithSuccess(ok bool) Option {
	return func(e *Entry) { e.Success = ok }
}

// WithClassification overrides the default ClassificationInternal.
func WithClassification(c Classification) Option {
	return func(e *Entry) { e.Classification = c }
}

// FromContext builds an Entry by combining the ambient request context with
// explicit call-site fields.
//
// With an established scope, actor id (resolved user or AnonymousActor),
// actor ip, tenant, request id, and session id come from the scope. Without
// one, the options must supply the tenant and an actor, and the resource
// must be identified; otherwise construction fails with ErrMissingContext -
// the tenant is never guessed.
func FromContext(ctx context.Context, action Action, resourceType, resourceID string, opts ...Option) (Entry, error) {
	e := Entry{
		ActorType:      ActorTypeUser,
		Action:         action,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		Success:        true,
		Classification: ClassificationInternal,
	}

	rc, ambient := requestcontext.CurrentOptional(ctx)
	if ambient {
		e.TenantID = rc.TenantID
		e.RequestID = rc.RequestID
		e.ActorIP = rc.ClientIP
		if rc.UserID.IsZero() {
			e.ActorID = AnonymousActor
		} else {
			e.ActorID = rc.UserID.String()
		}
		if !rc.SessionID.IsZero() {
			e.SessionID = rc.SessionID.String()
		}
	}

	for _, opt := range opts {
		opt(&e)
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx).UTC()
	}

	if !ambient {
		if e.TenantID.IsZero() || e.ResourceType == "" || e.ResourceID == "" {
			return Entry{}, fmt.Errorf("%w: tenant and resource must be supplied explicitly outside a request scope", ErrMissingContext)
		}
		if e.ActorID == "" {
			return Entry{}, fmt.Errorf("%w: actor must be supplied explicitly outside a request scope", ErrMissingContext)
		}
	}

	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func cloneValues(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	cloned := make(map[string]any, len(values))
	for k, v := range values {
		cloned[k] = v
	}
	return cloned
}
