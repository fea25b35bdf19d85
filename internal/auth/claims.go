package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token issuance defaults.
const (
	DefaultIssuer          = "user.zzszyct.xyz"
	DefaultAudience        = "user"
	DefaultAccessTokenTTL  = 24 * time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	// RefreshTokenLength is the number of alphanumeric characters in a refresh token value.
	RefreshTokenLength = 32

	// minSecretLength matches the config validation for HS256 signing keys.
	minSecretLength = 32

	// verifyLeeway absorbs small clock drift between issuing and verifying hosts.
	verifyLeeway = 5 * time.Second
)

// Claims is the access token payload. It carries identity and session
// correlation only; role and capabilities are re-read on every check.
type Claims struct {
	jwt.RegisteredClaims
	RefreshTokenUUID string `json:"refreshTokenUuid"`
}

// IssuerConfig holds the signing material and lifetimes for a TokenIssuer.
type IssuerConfig struct {
	Secret          string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// IssuerOption customises a TokenIssuer.
type IssuerOption func(*TokenIssuer)

// WithClock overrides the time source used for iat/nbf/exp and refresh expiry.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *TokenIssuer) {
		if now != nil {
			i.now = now
		}
	}
}

// TokenIssuer mints and verifies access tokens and mints refresh records.
// It performs no I/O; persisting refresh records is the caller's job.
//
// Thread Safety: safe for concurrent use; it holds no mutable state.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// NewTokenIssuer validates cfg, applies defaults for empty fields and returns an issuer.
func NewTokenIssuer(cfg IssuerConfig, opts ...IssuerOption) (*TokenIssuer, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretLength)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = DefaultRefreshTokenTTL
	}

	i := &TokenIssuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(verifyLeeway),
		jwt.WithTimeFunc(i.now),
	)
	return i, nil
}

// AccessTokenTTL returns the configured access token lifetime.
func (i *TokenIssuer) AccessTokenTTL() time.Duration {
	return i.accessTTL
}

// IssueTokenPair mints a new refresh record and an access token correlated to it.
func (i *TokenIssuer) IssueTokenPair(identity *Identity) (*TokenPair, *RefreshToken, error) {
	value, err := randomString(RefreshTokenLength, alphanumericAlphabet)
	if err != nil {
		return nil, nil, fmt.Errorf("generating refresh token: %w", err)
	}

	now := i.now().UTC()
	record := &RefreshToken{
		Value:     value,
		UUID:      uuid.NewString(),
		Username:  identity.Username,
		ExpiresAt: now.Add(i.refreshTTL),
		CreatedAt: now,
	}

	pair, err := i.sign(identity.Username, record.UUID, now)
	if err != nil {
		return nil, nil, err
	}
	pair.RefreshToken = record.Value
	return pair, record, nil
}

// ReissueAccessToken mints a new access token bound to an existing refresh UUID.
func (i *TokenIssuer) ReissueAccessToken(identity *Identity, refreshUUID string) (*TokenPair, error) {
	if refreshUUID == "" {
		return nil, fmt.Errorf("refresh token uuid is required")
	}
	return i.sign(identity.Username, refreshUUID, i.now().UTC())
}

func (i *TokenIssuer) sign(subject, refreshUUID string, now time.Time) (*TokenPair, error) {
	expiresAt := now.Add(i.accessTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		RefreshTokenUUID: refreshUUID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	return &TokenPair{
		AccessToken:      signed,
		RefreshTokenUUID: refreshUUID,
		ExpiresAt:        expiresAt,
	}, nil
}

// Verify validates an access token and returns its claims. Every failure,
// whatever the cause, is reported as ErrTokenInvalid.
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	token, err := i.parser.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.RefreshTokenUUID == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
