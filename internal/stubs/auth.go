package stubs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/recruiting-assistant/internal/rpc"
)

const invalidLogin = "Invalid username or password"

type loginParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResult struct {
	Success bool    `json:"success"`
	Token   *string `json:"token"`
	Error   *string `json:"error"`
}

// login answers success:false for bad credentials rather than a JSON-RPC error,
// as the production auth service does.
func (p *Platform) login(_ context.Context, params json.RawMessage) (any, error) {
	var in loginParams
	if err := rpc.DecodeParams(params, &in); err != nil {
		return nil, err
	}
	if in.Username == "" || in.Password == "" {
		return nil, rpc.NewInvalidParams("username and password are required")
	}

	hash, ok := p.users[in.Username]
	if !ok || !p.cfg.VerifyPassword(in.Password, hash) {
		p.log.Info("login rejected", zap.String("username", in.Username))
		msg := invalidLogin
		return loginResult{Success: false, Error: &msg}, nil
	}

	token, err := p.issueToken(in.Username)
	if err != nil {
		return nil, err
	}
	p.log.Debug("login accepted", zap.String("username", in.Username))
	return loginResult{Success: true, Token: &token}, nil
}

func (p *Platform) issueToken(subject string) (string, error) {
	now := p.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.cfg.TokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// checkToken enforces RequireToken. A token that is present is always verified.
func (p *Platform) checkToken(token string) error {
	if token == "" {
		if p.requireToken {
			return rpc.NewBusinessError("authentication required")
		}
		return nil
	}

	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return []byte(p.cfg.JWTSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return rpc.NewBusinessError("token expired")
		}
		return rpc.NewBusinessError("invalid token")
	}
	return nil
}
