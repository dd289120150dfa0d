package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type claim values.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// SchemaVersion is stamped into every issued token's version claim so the
// claim shape can evolve without invalidating outstanding tokens.
const SchemaVersion = "1.0"

var (
	// ErrExpired is returned by Decode when the exp claim has passed.
	ErrExpired = errors.New("token expired")
	// ErrSignature is returned by Decode when the signature does not verify.
	ErrSignature = errors.New("token signature invalid")
	// ErrMalformed is returned by Decode for structurally invalid tokens,
	// wrong issuer/audience, or missing required claims.
	ErrMalformed = errors.New("token malformed")
	// ErrEncoding is returned by Encode when claims cannot be signed.
	ErrEncoding = errors.New("token encoding failed")
)

// Method defines a public type used by tokenguard APIs.
//
// Method instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Method string

const (
	// MethodHS256 is an exported constant or variable used by the token codec.
	MethodHS256 Method = "hs256"
	// MethodHS384 is an exported constant or variable used by the token codec.
	MethodHS384 Method = "hs384"
	// MethodHS512 is an exported constant or variable used by the token codec.
	MethodHS512 Method = "hs512"
)

// Config defines a public type used by tokenguard APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret   []byte
	Method   Method
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Claims is the full claim set carried by access and refresh tokens.
// Instances are immutable once signed.
type Claims struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	DeviceFP   string `json:"device_fp"`
	ClientIP   string `json:"client_ip"`
	RefreshJTI string `json:"refresh_jti,omitempty"`
	Version    string `json:"version"`
	jwt.RegisteredClaims
}

// ClaimsParams is the input to [Codec.NewClaims].
type ClaimsParams struct {
	JTI        string
	Type       string
	UserID     string
	Email      string
	Role       string
	DeviceFP   string
	ClientIP   string
	RefreshJTI string
	TTL        time.Duration
}

// Codec signs and verifies tokens with an immutable, process-wide secret
// and algorithm established at construction.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a ready Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("codec requires signing secret")
	}
	switch cfg.Method {
	case MethodHS256, MethodHS384, MethodHS512:
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("codec requires issuer and audience")
	}

	return &Codec{config: cfg}, nil
}

// NewClaims builds a claim set for a fresh token: issuer, audience, subject,
// and the iat/nbf/exp window are filled from the codec configuration and p.TTL.
func (c *Codec) NewClaims(p ClaimsParams) *Claims {
	now := time.Now()

	return &Claims{
		Type:       p.Type,
		UserID:     p.UserID,
		Email:      p.Email,
		Role:       p.Role,
		DeviceFP:   p.DeviceFP,
		ClientIP:   p.ClientIP,
		RefreshJTI: p.RefreshJTI,
		Version:    SchemaVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.config.Issuer,
			Audience:  jwt.ClaimStrings{c.config.Audience},
			Subject:   p.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(p.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        p.JTI,
		},
	}
}

// Encode serializes and signs claims. It fails with [ErrEncoding] only on
// malformed claims, which should not occur for internally built claim sets.
func (c *Codec) Encode(claims *Claims) (string, error) {
	if claims == nil || claims.ID == "" || claims.Type == "" {
		return "", ErrEncoding
	}

	signed, err := jwt.NewWithClaims(c.method(), claims).SignedString(c.config.Secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return signed, nil
}

// Decode verifies the signature, issuer, audience, validity window, and the
// presence of all required claims (exp, iat, nbf, iss, aud, jti, type).
// Failures map to [ErrExpired], [ErrSignature], or [ErrMalformed].
func (c *Codec) Decode(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(c.config.Issuer),
		jwt.WithAudience(c.config.Audience),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return c.config.Secret, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if err := requireClaims(claims); err != nil {
		return nil, err
	}

	return claims, nil
}

func (c *Codec) method() jwt.SigningMethod {
	switch c.config.Method {
	case MethodHS384:
		return jwt.SigningMethodHS384
	case MethodHS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

func requireClaims(claims *Claims) error {
	if claims.ExpiresAt == nil || claims.IssuedAt == nil || claims.NotBefore == nil {
		return ErrMalformed
	}
	if claims.Issuer == "" || len(claims.Audience) == 0 {
		return ErrMalformed
	}
	if claims.ID == "" || claims.Type == "" {
		return ErrMalformed
	}
	return nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignature
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
