package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/expensebook/internal/model"
)

// MinSecretLength はトークン署名鍵の最小バイト数。
const MinSecretLength = 32

// Claims はセッショントークンのペイロード。SubjectにアカウントIDを保持する。
type Claims struct {
	jwt.RegisteredClaims
}

// AccountID はトークンが表すアカウントIDを返す。
func (c *Claims) AccountID() string {
	return c.Subject
}

// Expiry はトークンの有効期限を返す。
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// TokenVerifier はセッショントークンの検証インターフェース。
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// TokenService はHS256署名のセッショントークンを発行・検証する。
// 状態を持たないため、発行済みトークンの失効はできない。
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService はTokenServiceを生成する。
// 鍵がMinSecretLength未満、またはttlが正でない場合はエラーを返す。
// nowがnilの場合はtime.Nowを使用する。
func NewTokenService(secret string, ttl time.Duration, now func() time.Time) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	if now == nil {
		now = time.Now
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: now}, nil
}

// TTL はトークンの有効期間を返す。
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue はアカウントIDに対するトークンを発行し、トークンと有効期限を返す。
func (s *TokenService) Issue(accountID string) (string, time.Time, error) {
	if accountID == "" {
		return "", time.Time{}, errors.New("account ID is required")
	}

	// JWTの時刻は秒精度のため、返す有効期限もクレームと同じ秒に揃える
	now := s.now().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify はトークンの署名・アルゴリズム・有効期限を検証する。
// 失敗の理由にかかわらずmodel.ErrTokenInvalidを返す。
func (s *TokenService) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, model.ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, model.ErrTokenInvalid
	}
	return claims, nil
}

// compile-time interface check
var _ TokenVerifier = (*TokenService)(nil)
