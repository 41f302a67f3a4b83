package petchat

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionIdentity is the local user derived from the bearer credential.
type SessionIdentity struct {
	UserID      string
	DisplayName string
	AvatarURL   string
	Role        string
}

// IdentityFromToken derives the local user from a bearer JWT. The token is
// parsed without signature verification: the server owns verification, the
// client only needs the claims to know who it is acting as.
//
// An empty token is not an error; it yields a nil identity (guest mode).
func IdentityFromToken(token string) (*SessionIdentity, error) {
	if token == "" {
		return nil, nil
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, WrapError(ErrorUnauthorized, "invalid credential", err)
	}

	id := stringClaim(claims, "sub")
	if id == "" {
		id = stringClaim(claims, "id")
	}
	if id == "" {
		return nil, NewError(ErrorUnauthorized, "credential carries no subject")
	}

	return &SessionIdentity{
		UserID:      id,
		DisplayName: stringClaim(claims, "name"),
		AvatarURL:   stringClaim(claims, "avatar"),
		Role:        stringClaim(claims, "role"),
	}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}
