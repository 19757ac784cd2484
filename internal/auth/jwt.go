package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"teamchat/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims represents the JWT payload
type Claims struct {
	UserID string `json:"user_id"`
	TeamID string `json:"team_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens and turns them into actors.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthenticator(secret string, ttl time.Duration) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("JWT secret not set")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl}, nil
}

// GenerateToken creates a signed JWT for the given actor
func (a *Authenticator) GenerateToken(actor model.Actor) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: actor.ID.String(),
		TeamID: actor.TeamID.String(),
		Role:   string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Authenticate parses and verifies a JWT string
func (a *Authenticator) Authenticate(tokenStr string) (model.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return model.Actor{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return model.Actor{}, errors.New("invalid claims")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: user_id", ErrInvalidToken)
	}
	teamID, err := uuid.Parse(claims.TeamID)
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: team_id", ErrInvalidToken)
	}
	role := model.Role(claims.Role)
	if role == "" {
		role = model.RoleMember
	}
	return model.Actor{ID: userID, TeamID: teamID, Role: role}, nil
}
