// Package guard decides per request path whether the caller may proceed,
// must be sent elsewhere, or is refused.
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// Kind is the outcome of a guard decision.
type Kind int

const (
	Allow Kind = iota
	Redirect
	Deny
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// DenyBody is the JSON body sent with a denial.
type DenyBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Decision is the result of Evaluate.
type Decision struct {
	Kind     Kind
	Location string
	Status   int
	Body     *DenyBody
}

// Rules holds the path prefixes the guard distinguishes.
type Rules struct {
	LoginPath     string
	HomePath      string
	ProtectedPage []string
	ProtectedAPI  []string
	PublicAPI     []string
	GuestOnly     []string
	CallbackPath  string
}

// DefaultRules returns the routing rules of the service.
func DefaultRules() Rules {
	return Rules{
		LoginPath:     "/login",
		HomePath:      "/",
		ProtectedPage: []string{"/profile"},
		ProtectedAPI:  []string{"/api/oracle", "/api/interactions"},
		PublicAPI:     []string{"/api/oracle/health"},
		GuestOnly:     []string{"/login", "/signup", "/auth"},
		CallbackPath:  "/auth/callback",
	}
}

var unauthenticated = &DenyBody{Error: "Authentication required", Code: "UNAUTHENTICATED"}

// Evaluate applies the rules to path for the given session, which is nil
// when nobody is signed in. It has no side effects.
func (r Rules) Evaluate(path string, s *models.Session) Decision {
	if strings.Contains(path, r.CallbackPath) {
		return Decision{Kind: Allow}
	}

	if s == nil {
		if underAny(path, r.ProtectedAPI) && !underAny(path, r.PublicAPI) {
			return Decision{Kind: Deny, Status: http.StatusUnauthorized, Body: unauthenticated}
		}
		if underAny(path, r.ProtectedPage) {
			q := url.Values{"redirectTo": {path}}
			return Decision{Kind: Redirect, Location: r.LoginPath + "?" + q.Encode()}
		}
		return Decision{Kind: Allow}
	}

	if underAny(path, r.GuestOnly) {
		return Decision{Kind: Redirect, Location: r.HomePath}
	}
	return Decision{Kind: Allow}
}

// under reports whether path is prefix itself or lies below it.
func under(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}

func underAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if under(path, p) {
			return true
		}
	}
	return false
}
