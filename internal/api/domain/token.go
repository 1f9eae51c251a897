package domain

import "github.com/golang-jwt/jwt/v5"

// TokenKind separates access from refresh envelopes. A token of one kind is
// never accepted where the other is expected.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// TokenType is the token_type value returned alongside a pair.
const TokenType = "bearer"

// TokenPayload is the claim set sealed inside an envelope. It is only
// trusted after the envelope authenticates and is never persisted.
type TokenPayload struct {
	Kind TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is what login and refresh return.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}
