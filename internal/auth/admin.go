package auth

import (
	"context"
	"log/slog"

	"agendly/internal/types"
)

// AdminCheck is a single administrator authorization mechanism. Authorized
// answers "may this principal act as an admin" for an already-authenticated
// caller. An error means the check could not be evaluated, not that the
// principal was denied.
type AdminCheck interface {
	Name() string
	Authorized(ctx context.Context, p *Principal) (bool, error)
}

// AllowlistCheck grants admin access by static email allowlist membership.
// An empty allowlist grants nobody.
type AllowlistCheck struct {
	members map[string]struct{}
}

// NewAllowlistCheck builds an AllowlistCheck. Entries are canonicalized and
// blank entries are dropped.
func NewAllowlistCheck(emails []string) *AllowlistCheck {
	members := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if canonical := CanonicalizeEmail(e); canonical != "" {
			members[canonical] = struct{}{}
		}
	}
	return &AllowlistCheck{members: members}
}

func (c *AllowlistCheck) Name() string { return "allowlist" }

func (c *AllowlistCheck) Authorized(_ context.Context, p *Principal) (bool, error) {
	if p.Email == "" {
		return false, nil
	}
	_, ok := c.members[CanonicalizeEmail(p.Email)]
	return ok, nil
}

// AdminDirectory resolves administrator directory records.
type AdminDirectory interface {
	GetByUID(ctx context.Context, uid string) (*types.AdminRecord, error)
	GetByEmail(ctx context.Context, email string) (*types.AdminRecord, error)
}

// DirectoryCheck grants admin access through an active record in the
// system_admins directory, looked up by UID first and email second. An
// absent record denies without error.
type DirectoryCheck struct {
	directory AdminDirectory
}

// NewDirectoryCheck builds a DirectoryCheck over the given directory.
func NewDirectoryCheck(directory AdminDirectory) *DirectoryCheck {
	return &DirectoryCheck{directory: directory}
}

func (c *DirectoryCheck) Name() string { return "directory" }

func (c *DirectoryCheck) Authorized(ctx context.Context, p *Principal) (bool, error) {
	rec, err := c.lookup(ctx, p)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	return rec.Active, nil
}

func (c *DirectoryCheck) lookup(ctx context.Context, p *Principal) (*types.AdminRecord, error) {
	if p.UID != "" {
		rec, err := c.directory.GetByUID(ctx, p.UID)
		if err == nil {
			return rec, nil
		}
		if !isAdminNotFound(err) {
			return nil, err
		}
	}
	if p.Email == "" {
		return nil, nil
	}
	rec, err := c.directory.GetByEmail(ctx, p.Email)
	if err != nil {
		if isAdminNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func isAdminNotFound(err error) bool {
	appErr, ok := err.(*types.AppError)
	return ok && appErr.Code == types.ErrCodeNotFoundAdmin
}

// ClaimCheck grants admin access when the bearer credential carried a
// literal admin=true claim. Authentication already happened upstream, so a
// false claim is a denial, never an error.
type ClaimCheck struct{}

func (ClaimCheck) Name() string { return "claim" }

func (ClaimCheck) Authorized(_ context.Context, p *Principal) (bool, error) {
	return p.AdminClaim, nil
}

// AdminAuthorizer composes the historical authorization mechanisms behind a
// single entry point. Any one passing check authorizes the principal.
type AdminAuthorizer struct {
	checks []AdminCheck
	logger *slog.Logger
}

// NewAdminAuthorizer builds the composite over the given checks. A nil
// logger falls back to slog.Default().
func NewAdminAuthorizer(logger *slog.Logger, checks ...AdminCheck) *AdminAuthorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminAuthorizer{checks: checks, logger: logger}
}

// RequireAdmin authorizes an already-authenticated principal. It returns
// nil as soon as any mechanism passes. A mechanism that fails to evaluate
// is logged and treated as a denial for that mechanism; the remaining
// mechanisms still run. When none pass the caller gets a permission error,
// distinct from the authentication errors raised upstream.
func (a *AdminAuthorizer) RequireAdmin(ctx context.Context, p *Principal) error {
	if p == nil {
		return types.NewAppError(types.ErrCodeAuthTokenMissing, "missing credential", nil)
	}

	for _, check := range a.checks {
		ok, err := check.Authorized(ctx, p)
		if err != nil {
			a.logger.Error("admin check failed to evaluate",
				"check", check.Name(),
				"uid", p.UID,
				"error", err,
			)
			continue
		}
		if ok {
			return nil
		}
	}

	return types.NewAppError(types.ErrCodePermissionAdmin, "administrator access required", nil)
}

// MechanismVerdict records one mechanism's answer during a diagnosis run.
type MechanismVerdict struct {
	Mechanism  string `json:"mechanism"`
	Authorized bool   `json:"authorized"`
	Error      string `json:"error,omitempty"`
}

// Diagnosis reports how each mechanism answered for a principal.
// NeedsReconciliation is set when the mechanisms disagree, which indicates
// the admin sources have drifted and should be brought back in sync.
type Diagnosis struct {
	Verdicts            []MechanismVerdict `json:"verdicts"`
	Authorized          bool               `json:"authorized"`
	NeedsReconciliation bool               `json:"needs_reconciliation"`
}

// Diagnose evaluates every mechanism regardless of early passes and reports
// the full verdict set. Exposed on the admin API so drift between the
// allowlist, the directory, and token claims is visible instead of silent.
func (a *AdminAuthorizer) Diagnose(ctx context.Context, p *Principal) Diagnosis {
	diag := Diagnosis{Verdicts: make([]MechanismVerdict, 0, len(a.checks))}
	granted, denied := 0, 0
	for _, check := range a.checks {
		verdict := MechanismVerdict{Mechanism: check.Name()}
		ok, err := check.Authorized(ctx, p)
		if err != nil {
			verdict.Error = err.Error()
		} else {
			verdict.Authorized = ok
			if ok {
				granted++
			} else {
				denied++
			}
		}
		diag.Verdicts = append(diag.Verdicts, verdict)
	}
	diag.Authorized = granted > 0
	diag.NeedsReconciliation = granted > 0 && denied > 0
	return diag
}
