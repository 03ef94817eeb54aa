package agents

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/rpc"
	"github.com/jonathan/recruiting-assistant/internal/schemas"
	"github.com/jonathan/recruiting-assistant/internal/types"
)

type loginParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResult struct {
	Success bool    `json:"success"`
	Token   *string `json:"token"`
	Error   *string `json:"error"`
	Message *string `json:"message"`
}

// Authenticate exchanges credentials for a session. Failures are *AuthFailure.
func (c *Client) Authenticate(ctx context.Context, creds types.Credentials) (*types.Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, &AuthFailure{Reason: err.Error(), Kind: rpc.KindValidation, Cause: err}
	}

	raw, err := c.call(ctx, AuthService, MethodLogin, loginParams{Username: creds.Username, Password: creds.Password})
	if err != nil {
		c.log.Info("login failed", zap.String("username", creds.Username), zap.Error(err))
		return nil, &AuthFailure{Reason: reason(err), Kind: kindOf(err), Cause: err}
	}
	if err := checkResult(schemas.LoginResult, MethodLogin, raw); err != nil {
		return nil, &AuthFailure{Reason: err.Error(), Kind: rpc.KindProtocol, Cause: err}
	}

	var res loginResult
	if err := json.Unmarshal(raw, &res); err != nil {
		perr := protocolError(MethodLogin, "cannot decode login result", err)
		return nil, &AuthFailure{Reason: perr.Error(), Kind: rpc.KindProtocol, Cause: perr}
	}

	if !res.Success {
		msg := "invalid credentials"
		switch {
		case res.Error != nil && *res.Error != "":
			msg = *res.Error
		case res.Message != nil && *res.Message != "":
			msg = *res.Message
		}
		c.log.Info("login rejected", zap.String("username", creds.Username), zap.String("reason", msg))
		return nil, &AuthFailure{Reason: msg, Kind: rpc.KindBusiness, Cause: rpc.NewBusinessError(msg)}
	}
	if res.Token == nil || *res.Token == "" {
		perr := protocolError(MethodLogin, "login succeeded without a token", nil)
		return nil, &AuthFailure{Reason: perr.Error(), Kind: rpc.KindProtocol, Cause: perr}
	}

	session := &types.Session{Token: *res.Token, ObtainedAt: c.now()}
	readTokenClaims(session)
	c.log.Debug("login succeeded", zap.String("username", creds.Username))
	return session, nil
}

// readTokenClaims fills ExpiresAt and Subject when the token is a JWT. The token
// is not verified; the fields are informational only.
func readTokenClaims(session *types.Session) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(session.Token, claims); err != nil {
		return
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		session.ExpiresAt = &t
	}
	if sub, err := claims.GetSubject(); err == nil {
		session.Subject = sub
	}
}

// IsAuthFailure reports whether err is an *AuthFailure and returns it.
func IsAuthFailure(err error) (*AuthFailure, bool) {
	var af *AuthFailure
	ok := errors.As(err, &af)
	return af, ok
}
