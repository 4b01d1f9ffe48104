package permission

// DefaultRedirect is where a denied request is sent when no fallback exists
const DefaultRedirect = "/unauthorized"

// Checker is the subset of Evaluator a gate needs
type Checker interface {
	HasPermission(id string) bool
	HasAnyPermission(ids []string) bool
	HasAllPermissions(ids []string) bool
}

// Requirement declares what protected content needs. A non-empty
// PermissionID takes priority over Permissions; an empty requirement is public.
type Requirement struct {
	PermissionID string   `json:"permission_id,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
	RequireAll   bool     `json:"require_all,omitempty"`
}

// Public reports whether the requirement imposes no permission check
func (r Requirement) Public() bool {
	return r.PermissionID == "" && len(r.Permissions) == 0
}

// Allowed evaluates req against c
func Allowed(c Checker, req Requirement) bool {
	switch {
	case req.PermissionID != "":
		return c.HasPermission(req.PermissionID)
	case len(req.Permissions) > 0:
		if req.RequireAll {
			return c.HasAllPermissions(req.Permissions)
		}
		return c.HasAnyPermission(req.Permissions)
	default:
		return true
	}
}

// Outcome is what a gate decided to do with protected content
type Outcome int

const (
	// Granted renders the protected content
	Granted Outcome = iota
	// Fallback renders the alternative content
	Fallback
	// Redirect sends the caller to Decision.RedirectTo
	Redirect
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Fallback:
		return "fallback"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Gate wraps a requirement with its denial behaviour
type Gate struct {
	Requirement
	HasFallback bool
	RedirectTo  string
}

// Decision is the result of Gate.Decide
type Decision struct {
	Outcome    Outcome
	RedirectTo string
}

// Decide grants, falls back, or redirects
func (g Gate) Decide(c Checker) Decision {
	if Allowed(c, g.Requirement) {
		return Decision{Outcome: Granted}
	}
	if g.HasFallback {
		return Decision{Outcome: Fallback}
	}
	target := g.RedirectTo
	if target == "" {
		target = DefaultRedirect
	}
	return Decision{Outcome: Redirect, RedirectTo: target}
}
