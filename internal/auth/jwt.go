package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the token.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// ValidRole reports whether r is a known role.
func ValidRole(r string) bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleAdmin
}

var (
	ErrUnknownRole    = errors.New("unknown role")
	ErrInvalidToken   = errors.New("invalid token")
	ErrIssuerMismatch = errors.New("issuer mismatch")
)

// Claims represents the JWT payload. The subject is the user id the
// attendance data is keyed on (student or teacher id).
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Token is a signed access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Signer issues and verifies HS256 tokens.
type Signer struct {
	Key    []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// NewSigner creates a signer; ttl defaults to one hour.
func NewSigner(key, issuer string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{Key: []byte(key), Issuer: issuer, TTL: ttl, Now: time.Now}
}

// Issue signs an access token for subject with role.
func (s *Signer) Issue(subject, role string) (Token, error) {
	if !ValidRole(role) {
		return Token{}, ErrUnknownRole
	}
	now := s.Now()
	exp := now.Add(s.TTL)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Key)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns its claims.
func (s *Signer) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.Key, nil
	}, jwt.WithTimeFunc(s.Now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" || !ValidRole(claims.Role) {
		return Claims{}, ErrInvalidToken
	}
	if s.Issuer != "" && claims.Issuer != s.Issuer {
		return Claims{}, ErrIssuerMismatch
	}
	return *claims, nil
}
