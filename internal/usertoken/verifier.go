package usertoken

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/AniketChoudhary834/LMS/pkg/domain"
)

const (
	defaultIssuer       = "lms-auth"
	defaultAudience     = "lms-api"
	defaultLeeway       = 30 * time.Second
	defaultJWKSCacheTTL = 5 * time.Minute
)

var (
	errUnknownKey = errors.New("unknown token key")
	// ErrRevoked is returned for tokens revoked by logout or password reset.
	ErrRevoked = errors.New("token revoked")
)

// Revocations is the read side of the auth service's token revoker.
type Revocations interface {
	IsRevoked(tokenID string) (bool, error)
	RevokedAfter(userID string) (time.Time, error)
}

// Config configures user access-token verification.
type Config struct {
	JWKSURL     string
	Issuer      string
	Audience    string
	Leeway      time.Duration
	HTTPClient  *http.Client
	Revocations Revocations
}

type claims struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IssuedAtMs int64  `json:"iat_ms,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates user access tokens (RS256 + JWKS) and returns the
// caller identity carried in their claims.
type Verifier struct {
	issuer      string
	audience    string
	leeway      time.Duration
	jwksURL     string
	httpClient  *http.Client
	revocations Revocations

	refresh singleflight.Group

	mu         sync.RWMutex
	rsaKeys    map[string]*rsa.PublicKey
	keysExpire time.Time
}

// NewVerifier creates a token verifier and loads the initial key set.
func NewVerifier(cfg Config) (*Verifier, error) {
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = defaultAudience
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}

	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, errors.New("token verifier requires jwksURL")
	}
	v := &Verifier{
		issuer:      issuer,
		audience:    audience,
		leeway:      leeway,
		jwksURL:     jwksURL,
		httpClient:  cfg.HTTPClient,
		revocations: cfg.Revocations,
	}
	if v.httpClient == nil {
		v.httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if err := v.refreshJWKS(); err != nil {
		return nil, err
	}
	return v, nil
}

// Verify validates the token and returns the caller.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	c, err := v.verifyJWKS(token)
	if err != nil {
		return domain.Identity{}, err
	}
	subject := strings.TrimSpace(c.Subject)
	if subject == "" {
		return domain.Identity{}, errors.New("token subject missing")
	}
	if err := v.checkRevoked(c); err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{
		ID:    subject,
		Name:  c.Name,
		Email: c.Email,
		Role:  domain.UserRole(c.Role),
	}, nil
}

func (v *Verifier) checkRevoked(c claims) error {
	if v.revocations == nil {
		return nil
	}
	if c.ID != "" {
		revoked, err := v.revocations.IsRevoked(c.ID)
		if err != nil {
			return err
		}
		if revoked {
			return ErrRevoked
		}
	}
	cutoff, err := v.revocations.RevokedAfter(c.Subject)
	if err != nil {
		return err
	}
	issued := c.IssuedAt.Time
	if c.IssuedAtMs > 0 {
		issued = time.UnixMilli(c.IssuedAtMs)
	}
	if !cutoff.IsZero() && !issued.After(cutoff) {
		return ErrRevoked
	}
	return nil
}

func (v *Verifier) verifyJWKS(token string) (claims, error) {
	c, err := v.parseJWKS(token)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, errUnknownKey) && !v.keysExpired() {
		return c, err
	}
	if refreshErr := v.refreshJWKS(); refreshErr != nil {
		return c, refreshErr
	}
	return v.parseJWKS(token)
}

func (v *Verifier) parseJWKS(token string) (claims, error) {
	c := claims{}
	keys := v.copyKeys()
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, errUnknownKey
		}
		key, ok := keys[kid]
		if !ok {
			return nil, errUnknownKey
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return c, err
	}
	return c, nil
}

func (v *Verifier) keysExpired() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return time.Now().UTC().After(v.keysExpire)
}

func (v *Verifier) copyKeys() map[string]*rsa.PublicKey {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]*rsa.PublicKey, len(v.rsaKeys))
	for kid, key := range v.rsaKeys {
		out[kid] = key
	}
	return out
}

// refreshJWKS collapses concurrent refreshes into one fetch.
func (v *Verifier) refreshJWKS() error {
	_, err, _ := v.refresh.Do("jwks", func() (any, error) {
		return nil, v.fetchJWKS()
	})
	return err
}

func (v *Verifier) fetchJWKS() error {
	req, err := http.NewRequest(http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, k := range payload.Keys {
		if strings.ToUpper(strings.TrimSpace(k.Kty)) != "RSA" {
			continue
		}
		kid := strings.TrimSpace(k.Kid)
		if kid == "" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks contains no usable rsa keys")
	}

	ttl := parseCacheMaxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}

	v.mu.Lock()
	v.rsaKeys = keys
	v.keysExpire = time.Now().UTC().Add(ttl)
	v.mu.Unlock()
	return nil
}

func parseRSAPublicKey(nRaw, eRaw string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(nRaw))
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(eRaw))
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	eBig := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || !eBig.IsInt64() {
		return nil, errors.New("invalid rsa key")
	}
	e := int(eBig.Int64())
	if e <= 0 {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}

func parseCacheMaxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		raw, ok := strings.CutPrefix(part, "max-age=")
		if !ok {
			continue
		}
		secs, err := time.ParseDuration(strings.TrimSpace(raw) + "s")
		if err != nil {
			return 0
		}
		return secs
	}
	return 0
}
