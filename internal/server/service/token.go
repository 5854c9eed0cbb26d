package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kohakuhq/kohaku/internal/server/domain"
	"github.com/kohakuhq/kohaku/pkg/jwtx"
)

// DefaultBlacklistTTL is how long a revoked identity stays blacklisted
// when no explicit duration is given. It comfortably outlives the
// access token lifetime, so a revoked key's outstanding tokens are
// dead before the entry lapses.
const DefaultBlacklistTTL = 30 * time.Minute

var ErrTokenServiceInitialized = errors.New("token service already initialized")

var tokenServiceUp atomic.Bool

// TokenService signs and validates claims and tracks revoked identity
// ids in an in-memory blacklist. It is a process-wide singleton built
// once at startup via InitTokenService.
type TokenService struct {
	Signer *jwtx.HS256

	mu        sync.RWMutex
	blacklist map[int]time.Time
}

// NewTokenService builds an unguarded instance. Production code goes
// through InitTokenService; this exists for composing test fixtures.
func NewTokenService(signer *jwtx.HS256) *TokenService {
	return &TokenService{
		Signer:    signer,
		blacklist: make(map[int]time.Time),
	}
}

// InitTokenService constructs the singleton token service. A second
// call fails rather than silently replacing the first instance.
func InitTokenService(signer *jwtx.HS256) (*TokenService, error) {
	if !tokenServiceUp.CompareAndSwap(false, true) {
		return nil, ErrTokenServiceInitialized
	}
	return NewTokenService(signer), nil
}

// CreateToken validates the claim invariants and signs a token of the
// given kind. Invalid owner/id/scope combinations are rejected before
// signing.
func (s *TokenService) CreateToken(owner string, keyID int, scopes []string, kind jwtx.TokenType) (string, error) {
	claims := jwtx.NewClaims(owner, keyID, scopes, kind, time.Now())
	if err := claims.Validate(); err != nil {
		return "", err
	}
	return s.Signer.Sign(claims)
}

// CreateBootstrapToken issues the short-lived super-credential token:
// owner "system", identity -1, the keys:manage scope and nothing else.
func (s *TokenService) CreateBootstrapToken() (domain.TokenResponse, error) {
	access, err := s.CreateToken("system", jwtx.BootstrapKeyID, []string{jwtx.ScopeKeysManage}, jwtx.TokenTypeBootstrap)
	if err != nil {
		return domain.TokenResponse{}, err
	}
	return domain.TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(jwtx.BootstrapTokenTTL.Seconds()),
	}, nil
}

// CreateTokens issues an access/refresh pair sharing the same owner,
// identity and scopes. ExpiresIn reports the access token lifetime.
func (s *TokenService) CreateTokens(keyID int, owner string, scopes []string) (domain.TokenResponse, error) {
	access, err := s.CreateToken(owner, keyID, scopes, jwtx.TokenTypeAccess)
	if err != nil {
		return domain.TokenResponse{}, err
	}
	refresh, err := s.CreateToken(owner, keyID, scopes, jwtx.TokenTypeRefresh)
	if err != nil {
		return domain.TokenResponse{}, err
	}
	return domain.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(jwtx.AccessTokenTTL.Seconds()),
	}, nil
}

// ValidateToken verifies signature and expiry and returns the embedded
// claims. Signature mismatch, malformed payload and expiry all surface
// as jwtx.ErrInvalidToken.
func (s *TokenService) ValidateToken(token string) (jwtx.Claims, error) {
	return s.Signer.Verify(token)
}

// BlacklistKey records keyID as revoked until now + d. A zero duration
// applies DefaultBlacklistTTL. Re-revoking overwrites the expiry, so
// the entry set never grows past one entry per id.
func (s *TokenService) BlacklistKey(keyID int, d time.Duration) {
	if d <= 0 {
		d = DefaultBlacklistTTL
	}
	s.mu.Lock()
	s.blacklist[keyID] = time.Now().Add(d)
	s.mu.Unlock()
}

// IsBlacklisted sweeps every expired entry, then reports whether keyID
// is still revoked. There is no background reaper; the sweep happens on
// lookup.
func (s *TokenService) IsBlacklisted(keyID int) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, until := range s.blacklist {
		if !now.Before(until) {
			delete(s.blacklist, id)
		}
	}

	_, ok := s.blacklist[keyID]
	return ok
}

// BlacklistSize reports the live entry count after a sweep. Used by
// tests and diagnostics.
func (s *TokenService) BlacklistSize() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, until := range s.blacklist {
		if !now.Before(until) {
			delete(s.blacklist, id)
		}
	}
	return len(s.blacklist)
}
