package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ragmesh/ragmesh/internal/adapter/otel"
	"github.com/ragmesh/ragmesh/internal/config"
	"github.com/ragmesh/ragmesh/internal/domain"
	"github.com/ragmesh/ragmesh/internal/domain/scope"
	"github.com/ragmesh/ragmesh/internal/domain/user"
	"github.com/ragmesh/ragmesh/internal/port/cache"
	"github.com/ragmesh/ragmesh/internal/port/database"
)

const (
	tokenAudience = "ragmesh"
	tokenIssuer   = "ragmesh-core"
)

// AuthService resolves both credential classes: short-lived session tokens for
// humans and long-lived API keys for programs. It also owns registration,
// login, refresh rotation, and API key lifecycle.
type AuthService struct {
	store    database.Store
	cfg      *config.Auth
	secret   []byte
	keyCache cache.Cache   // validated API key contexts, short TTL
	metrics  *otel.Metrics // may be nil
}

// NewAuthService creates a new authentication service. keyCache may be nil to
// disable API key caching; metrics may be nil.
func NewAuthService(store database.Store, cfg *config.Auth, keyCache cache.Cache, metrics *otel.Metrics) *AuthService {
	return &AuthService{
		store:    store,
		cfg:      cfg,
		secret:   []byte(cfg.JWTSecret),
		keyCache: keyCache,
		metrics:  metrics,
	}
}

// Register creates a new user with a bcrypt-hashed password.
func (s *AuthService) Register(ctx context.Context, req *user.CreateRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &user.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(req.Email),
		Name:         req.Name,
		PasswordHash: string(hash),
		Active:       true,
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login authenticates a user and returns an access token plus the raw refresh
// token. The refresh token is stored hashed; the raw value exists only here.
func (s *AuthService) Login(ctx context.Context, req user.LoginRequest) (*user.LoginResponse, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(req.Email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", fmt.Errorf("invalid credentials: %w", domain.ErrUnauthenticated)
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	if !u.Active {
		return nil, "", fmt.Errorf("account is disabled: %w", domain.ErrUnauthenticated)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, "", fmt.Errorf("invalid credentials: %w", domain.ErrUnauthenticated)
	}

	accessToken, err := s.signJWT(u)
	if err != nil {
		return nil, "", fmt.Errorf("sign jwt: %w", err)
	}

	rawToken, err := generateRandomToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}

	rt := &user.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hashSHA256(rawToken),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenExpiry),
	}
	if err := s.store.CreateRefreshToken(ctx, rt); err != nil {
		return nil, "", fmt.Errorf("store refresh token: %w", err)
	}

	resp := &user.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.cfg.AccessTokenExpiry.Seconds()),
		User:        *u,
	}
	return resp, rawToken, nil
}

// RefreshTokens validates a refresh token, atomically rotates it, and issues a
// new access token. A reused (already rotated) token fails the rotation.
func (s *AuthService) RefreshTokens(ctx context.Context, rawToken string) (*user.LoginResponse, string, error) {
	rt, err := s.store.GetRefreshTokenByHash(ctx, hashSHA256(rawToken))
	if err != nil {
		return nil, "", fmt.Errorf("invalid refresh token: %w", domain.ErrUnauthenticated)
	}

	if time.Now().After(rt.ExpiresAt) {
		_ = s.store.DeleteRefreshToken(ctx, rt.ID)
		return nil, "", domain.ErrTokenExpired
	}

	u, err := s.store.GetUser(ctx, rt.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("get user: %w", err)
	}
	if !u.Active {
		return nil, "", fmt.Errorf("account is disabled: %w", domain.ErrUnauthenticated)
	}

	accessToken, err := s.signJWT(u)
	if err != nil {
		return nil, "", fmt.Errorf("sign jwt: %w", err)
	}

	newRawToken, err := generateRandomToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}
	newRT := &user.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hashSHA256(newRawToken),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenExpiry),
	}
	if err := s.store.RotateRefreshToken(ctx, rt.ID, newRT); err != nil {
		return nil, "", fmt.Errorf("rotate refresh token: %w", err)
	}

	resp := &user.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.cfg.AccessTokenExpiry.Seconds()),
		User:        *u,
	}
	return resp, newRawToken, nil
}

// Logout deletes all refresh tokens for a user. Outstanding access tokens
// remain valid until expiry; they are short-lived by configuration.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.store.DeleteRefreshTokensByUser(ctx, userID)
}

// ChangePassword verifies the old password, hashes the new one, and drops all
// refresh tokens so other sessions must log in again.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req user.ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.OldPassword)); err != nil {
		return fmt.Errorf("current password is incorrect: %w", domain.ErrUnauthenticated)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return s.store.DeleteRefreshTokensByUser(ctx, userID)
}

// GetUser returns a user by ID.
func (s *AuthService) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.store.GetUser(ctx, id)
}

// --- Credential resolution ---

// ResolveCredential turns a raw bearer credential into an AuthContext. Keys
// carrying the structural prefix take the API key path; everything else is
// treated as a session token. The two paths never fall through to each other:
// a malformed key is rejected as a key, not retried as a token.
func (s *AuthService) ResolveCredential(ctx context.Context, bearer string) (*scope.AuthContext, error) {
	if bearer == "" {
		return nil, fmt.Errorf("missing credential: %w", domain.ErrUnauthenticated)
	}
	if strings.HasPrefix(bearer, user.KeyPrefix) {
		return s.resolveAPIKey(ctx, bearer)
	}
	return s.resolveSession(bearer)
}

func (s *AuthService) resolveSession(tokenStr string) (*scope.AuthContext, error) {
	claims, err := s.verifyJWT(tokenStr)
	if err != nil {
		return nil, err
	}
	// Session tokens carry no tenant/project; those come from request headers
	// and are checked against memberships by the access service.
	return &scope.AuthContext{
		UserID: claims.UserID,
		Kind:   scope.AuthSession,
	}, nil
}

func (s *AuthService) resolveAPIKey(ctx context.Context, rawKey string) (*scope.AuthContext, error) {
	keyHash := hashSHA256(rawKey)

	if authCtx, ok := s.cachedKey(ctx, keyHash); ok {
		if s.metrics != nil {
			s.metrics.AuthCacheHits.Add(ctx, 1)
		}
		return authCtx, nil
	}
	if s.metrics != nil {
		s.metrics.AuthCacheMisses.Add(ctx, 1)
	}

	if len(rawKey) < user.KeyDisplayLen {
		return nil, domain.ErrKeyNotFound
	}
	candidates, err := s.store.GetAPIKeysByPrefix(ctx, rawKey[:user.KeyDisplayLen])
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}

	var match *user.APIKey
	for i := range candidates {
		if hmac.Equal([]byte(candidates[i].KeyHash), []byte(keyHash)) {
			match = &candidates[i]
			break
		}
	}
	if match == nil {
		return nil, domain.ErrKeyNotFound
	}
	if match.Revoked() {
		return nil, domain.ErrKeyRevoked
	}
	if match.Expired(time.Now()) {
		return nil, domain.ErrKeyExpired
	}

	authCtx := &scope.AuthContext{
		UserID:    match.UserID,
		TenantID:  match.TenantID,
		ProjectID: match.ProjectID,
		Scopes:    match.Scopes,
		Kind:      scope.AuthAPIKey,
		KeyID:     match.ID,
	}
	s.storeCachedKey(ctx, keyHash, authCtx)

	// Usage tracking is best-effort and off the request path.
	go func(id string) {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.TouchAPIKey(touchCtx, id, time.Now().UTC()); err != nil {
			slog.Warn("failed to record api key usage", "key_id", id, "error", err)
		}
	}(match.ID)

	return authCtx, nil
}

func (s *AuthService) cachedKey(ctx context.Context, keyHash string) (*scope.AuthContext, bool) {
	if s.keyCache == nil {
		return nil, false
	}
	data, ok, err := s.keyCache.Get(ctx, "apikey."+keyHash)
	if err != nil || !ok {
		return nil, false
	}
	var authCtx scope.AuthContext
	if err := json.Unmarshal(data, &authCtx); err != nil {
		return nil, false
	}
	return &authCtx, true
}

func (s *AuthService) storeCachedKey(ctx context.Context, keyHash string, authCtx *scope.AuthContext) {
	if s.keyCache == nil {
		return
	}
	data, err := json.Marshal(authCtx)
	if err != nil {
		return
	}
	if err := s.keyCache.Set(ctx, "apikey."+keyHash, data, s.cfg.KeyCacheTTL); err != nil {
		slog.Warn("failed to cache api key", "error", err)
	}
}

// --- API key lifecycle ---

// CreateAPIKey generates a key bound to one tenant and project. The plaintext
// appears once in the response and is never recoverable afterwards.
func (s *AuthService) CreateAPIKey(ctx context.Context, userID, tenantID string, req user.CreateAPIKeyRequest) (*user.CreateAPIKeyResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	raw, err := generateRandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	plainKey := user.KeyPrefix + raw

	var expiresAt time.Time
	if req.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	key := &user.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		TenantID:  tenantID,
		ProjectID: req.ProjectID,
		Name:      req.Name,
		Prefix:    plainKey[:user.KeyDisplayLen],
		KeyHash:   hashSHA256(plainKey),
		Scopes:    req.Scopes,
		Active:    true,
		ExpiresAt: expiresAt,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	return &user.CreateAPIKeyResponse{APIKey: *key, PlainKey: plainKey}, nil
}

// ListAPIKeys returns all API keys owned by a user.
func (s *AuthService) ListAPIKeys(ctx context.Context, userID string) ([]user.APIKey, error) {
	return s.store.ListAPIKeysByUser(ctx, userID)
}

// RevokeAPIKey disables a key without deleting its audit trail, and purges
// the cached credential so the key stops authenticating immediately rather
// than when the cache TTL elapses.
func (s *AuthService) RevokeAPIKey(ctx context.Context, id, userID string) error {
	hash := s.keyHashByID(ctx, id, userID)
	if err := s.store.RevokeAPIKey(ctx, id, userID, time.Now().UTC()); err != nil {
		return err
	}
	s.purgeCachedKey(ctx, hash)
	return nil
}

// DeleteAPIKey removes a key entirely. The cached credential is purged too;
// the hash is read before the row disappears.
func (s *AuthService) DeleteAPIKey(ctx context.Context, id, userID string) error {
	hash := s.keyHashByID(ctx, id, userID)
	if err := s.store.DeleteAPIKey(ctx, id, userID); err != nil {
		return err
	}
	s.purgeCachedKey(ctx, hash)
	return nil
}

// keyHashByID resolves a key's stored hash through the owner's key list.
// Returns "" when the key is unknown; the store call that follows reports
// the real error.
func (s *AuthService) keyHashByID(ctx context.Context, id, userID string) string {
	if s.keyCache == nil {
		return ""
	}
	keys, err := s.store.ListAPIKeysByUser(ctx, userID)
	if err != nil {
		return ""
	}
	for _, k := range keys {
		if k.ID == id {
			return k.KeyHash
		}
	}
	return ""
}

// purgeCachedKey removes a resolved credential from every cache tier.
func (s *AuthService) purgeCachedKey(ctx context.Context, keyHash string) {
	if s.keyCache == nil || keyHash == "" {
		return
	}
	if err := s.keyCache.Delete(ctx, "apikey."+keyHash); err != nil {
		slog.Warn("failed to purge cached api key", "error", err)
	}
}

// StartRefreshTokenCleanup purges expired refresh tokens on an interval until
// ctx is cancelled.
func (s *AuthService) StartRefreshTokenCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.store.PurgeExpiredRefreshTokens(ctx)
				if err != nil {
					slog.Warn("failed to purge expired refresh tokens", "error", err)
				} else if n > 0 {
					slog.Info("purged expired refresh tokens", "count", n)
				}
			}
		}
	}()
}

// --- JWT implementation (HS256 with stdlib) ---

// jwtHeader is the fixed base64url-encoded header for HS256.
var jwtHeader = base64URLEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))

func (s *AuthService) signJWT(u *user.User) (string, error) {
	now := time.Now()
	claims := user.TokenClaims{
		UserID:   u.ID,
		Email:    u.Email,
		Name:     u.Name,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(s.cfg.AccessTokenExpiry).Unix(),
		JTI:      uuid.NewString(),
		Audience: tokenAudience,
		Issuer:   tokenIssuer,
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	signingInput := jwtHeader + "." + base64URLEncode(payload)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	sig := base64URLEncode(mac.Sum(nil))

	return signingInput + "." + sig, nil
}

func (s *AuthService) verifyJWT(tokenStr string) (*user.TokenClaims, error) {
	parts := strings.SplitN(tokenStr, ".", 3)
	if len(parts) != 3 {
		return nil, domain.ErrTokenInvalid
	}

	signingInput := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	expectedSig := base64URLEncode(mac.Sum(nil))

	if !hmac.Equal([]byte(parts[2]), []byte(expectedSig)) {
		return nil, domain.ErrTokenInvalid
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	var claims user.TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, domain.ErrTokenInvalid
	}

	if time.Now().Unix() > claims.Expiry {
		return nil, domain.ErrTokenExpired
	}
	if claims.Audience != tokenAudience || claims.Issuer != tokenIssuer {
		return nil, domain.ErrTokenInvalid
	}

	return &claims, nil
}

// --- Helpers ---

func base64URLEncode(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func base64URLDecode(s string) ([]byte, error) {
	// Add padding back
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}

func hashSHA256(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

func generateRandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
