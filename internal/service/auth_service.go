package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bloktest/session-backend/internal/config"
	"github.com/bloktest/session-backend/internal/gateway"
	"github.com/bloktest/session-backend/internal/model"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no active session")
	ErrSessionInvalidated = errors.New("session invalidated by a newer login")
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

const (
	sessionFieldJTI          = "jti"
	sessionFieldGatewayToken = "gateway_token"
)

// AuthService authenticates users against the remote gateway and manages
// local JWTs plus the single-device session record in Redis. The upstream
// gateway token never leaves the backend; clients only ever see our JWT.
type AuthService struct {
	cfg *config.Config
	rdb *redis.Client
	gw  gateway.AuthAPI
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, gw gateway.AuthAPI) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb, gw: gw}
}

// Login verifies credentials upstream and mints a local JWT. A newer login
// overwrites the previous session record, so the older device's token stops
// validating on its next request.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (string, *model.User, error) {
	upstreamToken, user, err := s.gw.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, gateway.ErrUnauthorized) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("gateway login: %w", err)
	}

	token, err := s.issueToken(ctx, user.ID, upstreamToken)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Register creates an account upstream and logs the new user in.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (string, *model.User, error) {
	upstreamToken, user, err := s.gw.Register(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("gateway register: %w", err)
	}

	token, err := s.issueToken(ctx, user.ID, upstreamToken)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *AuthService) issueToken(ctx context.Context, userID, upstreamToken string) (string, error) {
	jti := uuid.New().String()
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	sessionKey := config.CacheKey.UserSessionKey(userID)
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, sessionKey, sessionFieldJTI, jti, sessionFieldGatewayToken, upstreamToken)
	pipe.Expire(ctx, sessionKey, s.cfg.JWTExpiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// ValidateSession checks the token's JTI against the active session record
// and returns the upstream gateway token for outbound calls.
func (s *AuthService) ValidateSession(ctx context.Context, userID, jti string) (string, error) {
	sessionKey := config.CacheKey.UserSessionKey(userID)
	fields, err := s.rdb.HGetAll(ctx, sessionKey).Result()
	if err != nil {
		return "", fmt.Errorf("check session: %w", err)
	}
	if len(fields) == 0 {
		return "", ErrNoSession
	}
	if fields[sessionFieldJTI] != jti {
		return "", ErrSessionInvalidated
	}
	return fields[sessionFieldGatewayToken], nil
}

// Logout invalidates the upstream token (best effort) and removes the local
// session record.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	sessionKey := config.CacheKey.UserSessionKey(userID)

	upstreamToken, err := s.rdb.HGet(ctx, sessionKey, sessionFieldGatewayToken).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("load session: %w", err)
	}
	if upstreamToken != "" {
		// Best effort; the upstream token expires on its own if this fails.
		_ = s.gw.Logout(ctx, upstreamToken)
	}

	return s.rdb.Del(ctx, sessionKey).Err()
}
