// Package stafftoken issues and checks the RS256 bearer tokens that library
// staff present on mutating requests.
package stafftoken

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTTL      = 8 * time.Hour
	DefaultLeeway   = 30 * time.Second
	DefaultKeyID    = "staff-active"
	DefaultAudience = "library"
)

var (
	ErrMissingToken    = errors.New("staff token required")
	ErrInvalidToken    = errors.New("staff token invalid")
	ErrIssuerForbidden = errors.New("staff token issuer not allowed")
)

// Claims identifies the staff member behind a request.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// Signer mints staff tokens. It backs the issue_token command.
type Signer struct {
	key      *rsa.PrivateKey
	keyID    string
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// SignerOptions configures a Signer.
type SignerOptions struct {
	PrivateKeyPath string
	KeyID          string
	Issuer         string
	Audience       string
	TTL            time.Duration
}

// NewSigner loads the private key and applies defaults.
func NewSigner(opts SignerOptions) (*Signer, error) {
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return nil, errors.New("staff token issuer is required")
	}
	path := strings.TrimSpace(opts.PrivateKeyPath)
	if path == "" {
		return nil, errors.New("staff token private key path is required")
	}
	key, err := LoadPrivateKey(path)
	if err != nil {
		return nil, fmt.Errorf("load staff signing key: %w", err)
	}
	s := &Signer{
		key:      key,
		keyID:    firstNonEmpty(opts.KeyID, DefaultKeyID),
		issuer:   issuer,
		audience: firstNonEmpty(opts.Audience, DefaultAudience),
		ttl:      opts.TTL,
		now:      time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	return s, nil
}

// Sign issues a token for the staff member identified by subject.
func (s *Signer) Sign(subject, name string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("staff token subject is required")
	}
	now := s.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
		Name: strings.TrimSpace(name),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.keyID
	return t.SignedString(s.key)
}

// Verifier checks staff tokens against one public key per key id.
type Verifier struct {
	keys     map[string]*rsa.PublicKey
	audience string
	issuers  map[string]struct{}
	leeway   time.Duration
	revoker  Revoker
}

// VerifierOptions configures a Verifier.
type VerifierOptions struct {
	PublicKeyPath  string
	KeyID          string
	Audience       string
	AllowedIssuers []string
	Leeway         time.Duration
	// Revoker is consulted for every token id when set.
	Revoker        Revoker
}

// NewVerifier loads the public key. At least one issuer must be allowed.
func NewVerifier(opts VerifierOptions) (*Verifier, error) {
	issuers := make(map[string]struct{})
	for _, issuer := range opts.AllowedIssuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			issuers[issuer] = struct{}{}
		}
	}
	if len(issuers) == 0 {
		return nil, errors.New("at least one staff token issuer is required")
	}
	path := strings.TrimSpace(opts.PublicKeyPath)
	if path == "" {
		return nil, errors.New("staff token public key path is required")
	}
	pub, err := LoadPublicKey(path)
	if err != nil {
		return nil, fmt.Errorf("load staff verify key: %w", err)
	}
	v := &Verifier{
		keys:     map[string]*rsa.PublicKey{firstNonEmpty(opts.KeyID, DefaultKeyID): pub},
		audience: firstNonEmpty(opts.Audience, DefaultAudience),
		issuers:  issuers,
		leeway:   opts.Leeway,
		revoker:  opts.Revoker,
	}
	if v.leeway <= 0 {
		v.leeway = DefaultLeeway
	}
	return v, nil
}

// Verify validates signature, key id, expiry, audience, issuer and, when a
// revoker is configured, that the token id has not been revoked.
func (v *Verifier) Verify(ctx context.Context, token string) (Claims, error) {
	var claims Claims
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, ErrMissingToken
	}
	_, err := jwt.ParseWithClaims(token, &claims, v.keyFor,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return claims, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, ok := v.issuers[claims.Issuer]; !ok {
		return claims, ErrIssuerForbidden
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return claims, fmt.Errorf("%w: subject required", ErrInvalidToken)
	}
	if claims.ID == "" {
		return claims, fmt.Errorf("%w: jti required", ErrInvalidToken)
	}
	if v.revoker != nil {
		revoked, err := v.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return claims, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return claims, ErrRevoked
		}
	}
	return claims, nil
}

func (v *Verifier) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	pub, ok := v.keys[strings.TrimSpace(kid)]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return pub, nil
}

// Inspect decodes claims without checking the signature. It is meant for
// operator tooling such as revocation, never for authorisation.
func Inspect(token string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), &claims); err != nil {
		return claims, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
