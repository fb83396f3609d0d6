// Package auth implements credential verification against HMAC-signed JWTs.
package auth

import (
	"context"
	"errors"
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

// JWTVerifier accepts tokens signed with the configured HMAC secret. Only
// the HMAC family is allowed; asymmetric headers are rejected outright.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

func (v *JWTVerifier) VerifyCredential(_ context.Context, token string) (core.Identity, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return core.Identity{}, err
	}
	if !parsed.Valid {
		return core.Identity{}, errors.New("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return core.Identity{}, errors.New("claims type mismatch")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return core.Identity{}, errors.New("token has no subject")
	}
	identity := core.Identity{UserID: domain.UserID(sub)}
	if name, ok := claims["name"].(string); ok {
		identity.Username = name
	}
	return identity, nil
}
