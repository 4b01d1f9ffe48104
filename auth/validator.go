package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer does not match
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidSubject is returned when sub is missing or is not a user id
	ErrInvalidSubject = errors.New("invalid subject")
)

// Claims represents the claims carried by tokens minted by the user service.
// Sub is kept raw because older tokens encode the user id as a number.
type Claims struct {
	jwt.RegisteredClaims
	Sub json.RawMessage `json:"sub"`
}

// ParsedClaims represents parsed and validated claims
type ParsedClaims struct {
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Config holds configuration for Validator
type Config struct {
	Secret    string
	Algorithm string // HS256, HS384 or HS512
	Issuer    string // optional
	Leeway    time.Duration
}

// Validator validates HMAC signed bearer tokens
type Validator struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
	leeway time.Duration
}

// NewValidator creates a new token validator
func NewValidator(config Config) (*Validator, error) {
	if config.Secret == "" {
		return nil, errors.New("token secret is required")
	}
	if config.Algorithm == "" {
		config.Algorithm = "HS256"
	}
	method, ok := jwt.GetSigningMethod(config.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm: %s", config.Algorithm)
	}

	return &Validator{
		secret: []byte(config.Secret),
		method: method,
		issuer: config.Issuer,
		leeway: config.Leeway,
	}, nil
}

// ValidateToken validates a token and returns parsed claims
func (v *Validator) ValidateToken(ctx context.Context, tokenString string) (*ParsedClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, fmt.Errorf("%w: expected %s", ErrInvalidIssuer, v.issuer)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return parseClaims(claims)
}

// Sign mints a token for userID. Used by tests and local tooling; production
// tokens come from the user service.
func (v *Validator) Sign(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	return jwt.NewWithClaims(v.method, claims).SignedString(v.secret)
}

func parseClaims(claims *Claims) (*ParsedClaims, error) {
	userID, err := parseSubject(claims.Sub)
	if err != nil {
		return nil, err
	}

	parsed := &ParsedClaims{UserID: userID}
	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}
	return parsed, nil
}

// parseSubject accepts "42" or 42. Service tokens use names like
// "report-service" and are rejected here.
func parseSubject(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%w: missing", ErrInvalidSubject)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidSubject, string(raw))
		}
		s = n.String()
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSubject, s)
	}
	return id, nil
}
