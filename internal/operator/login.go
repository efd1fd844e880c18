package operator

import (
	"context"
	"time"

	"github.com/luchaneitor/tecnoacceso-web/internal/gateway"
)

// Login authenticates against the backend and returns a ready session
// context. The caller decides whether to Save it.
func Login(ctx context.Context, gw *gateway.HTTPClient, username, password string) (Context, error) {
	res, err := gw.Login(ctx, username, password)
	if err != nil {
		return Context{}, err
	}
	role, err := ParseRole(res.Operator.Role)
	if err != nil {
		return Context{}, err
	}
	gw.SetToken(res.Token)
	return Context{
		OperatorID:   res.Operator.ID,
		Username:     res.Operator.Username,
		DisplayName:  res.Operator.DisplayName,
		Role:         role,
		Dependency:   res.Operator.Dependency,
		Token:        res.Token,
		LoggedInAtMs: time.Now().UnixMilli(),
	}, nil
}
