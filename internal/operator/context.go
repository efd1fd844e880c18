// Package operator holds the authenticated operator identity for one panel
// session.
package operator

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Role gates what an observer may see. It is resolved once at login and is
// immutable for the lifetime of the session.
type Role string

const (
	// RoleAdmin observers poll the remote store and see the global
	// activity/log/alert feeds.
	RoleAdmin Role = "admin"
	// RoleOperator observers see no activity or log feed at all, not even
	// their own records.
	RoleOperator Role = "operator"
)

// ParseRole validates a role string.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleOperator:
		return RoleOperator, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// Context is the authenticated operator identity. Created at login,
// destroyed at logout.
type Context struct {
	// OperatorID is the server-side operator id.
	OperatorID string `json:"operatorId"`
	// Username is the login name.
	Username string `json:"username"`
	// DisplayName is the operator-facing name.
	DisplayName string `json:"displayName"`
	// Role is admin or operator.
	Role Role `json:"role"`
	// Dependency is the organizational grouping tag.
	Dependency string `json:"dependency"`
	// Token is the bearer token issued at login.
	Token string `json:"token"`
	// LoggedInAtMs is the wall-clock login time.
	LoggedInAtMs int64 `json:"loggedInAtMs"`
}

// IsAdmin reports whether this session may observe global feeds.
func (c Context) IsAdmin() bool { return c.Role == RoleAdmin }

// Save persists the context to path with restrictive permissions, using the
// tmp+rename pattern so a crashed write never leaves a torn file.
func Save(path string, ctx Context) error {
	if ctx.Username == "" {
		return fmt.Errorf("missing username")
	}
	if ctx.LoggedInAtMs == 0 {
		ctx.LoggedInAtMs = time.Now().UnixMilli()
	}
	raw, err := json.Marshal(ctx)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a stored context. ok is false when none is stored.
func Load(path string) (ctx Context, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Context{}, false, nil
		}
		return Context{}, false, err
	}
	if err := json.Unmarshal(data, &ctx); err != nil {
		return Context{}, false, fmt.Errorf("corrupt credentials file: %w", err)
	}
	if _, err := ParseRole(string(ctx.Role)); err != nil {
		return Context{}, false, fmt.Errorf("corrupt credentials file: %w", err)
	}
	return ctx, true, nil
}

// Clear removes a stored context. Missing files are not an error.
func Clear(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
