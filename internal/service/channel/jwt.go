package channel

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sharetube/watchparty/internal/domain"
)

type Claims struct {
	ChannelID string `json:"channel_id"`
	Identity  string `json:"identity"`
	jwt.RegisteredClaims
}

func (s service) generateJWT(channelID, identity string, expiresAt time.Time) (string, error) {
	claims := Claims{
		ChannelID: channelID,
		Identity:  identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(s.secret)
}

// ParseToken validates a token issued on create or join and returns the
// (channel, identity) pair it is bound to.
func (s service) ParseToken(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
	}

	if !token.Valid || claims.ChannelID == "" || claims.Identity == "" {
		return Claims{}, fmt.Errorf("%w: %w", domain.ErrPermissionDenied, errors.New("invalid token"))
	}

	return claims, nil
}
