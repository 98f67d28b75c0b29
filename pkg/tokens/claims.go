package tokens

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the payload of an access token as issued by the
// subscription service: the owning user plus the standard exp claim.
type AccessClaims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID uint   `json:"user_id"`
	Typ    string `json:"typ"`
	jwt.RegisteredClaims
}
