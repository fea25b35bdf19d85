package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueTokenPair(t *testing.T) {
	clock := newTestClock()
	issuer := newTestIssuer(t, clock)
	identity := &Identity{Username: "alice", Role: RoleUser}

	pair, record, err := issuer.IssueTokenPair(identity)
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}

	if len(record.Value) != RefreshTokenLength {
		t.Errorf("refresh value length = %d, want %d", len(record.Value), RefreshTokenLength)
	}
	if pair.RefreshToken != record.Value {
		t.Error("pair should carry the refresh value")
	}
	if pair.RefreshTokenUUID != record.UUID || record.UUID == "" {
		t.Errorf("uuid mismatch: pair %q record %q", pair.RefreshTokenUUID, record.UUID)
	}
	if record.Username != "alice" {
		t.Errorf("record username = %q, want alice", record.Username)
	}
	if want := clock.Now().Add(DefaultRefreshTokenTTL); !record.ExpiresAt.Equal(want) {
		t.Errorf("refresh expiry = %v, want %v", record.ExpiresAt, want)
	}
	if want := clock.Now().Add(DefaultAccessTokenTTL); !pair.ExpiresAt.Equal(want) {
		t.Errorf("access expiry = %v, want %v", pair.ExpiresAt, want)
	}

	claims, err := issuer.Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("Subject = %q, want alice", claims.Subject)
	}
	if claims.RefreshTokenUUID != record.UUID {
		t.Errorf("RefreshTokenUUID = %q, want %q", claims.RefreshTokenUUID, record.UUID)
	}
	if claims.Issuer != DefaultIssuer {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, DefaultIssuer)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
}

func TestIssueTokenPair_Unique(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	identity := &Identity{Username: "alice", Role: RoleUser}

	_, first, err := issuer.IssueTokenPair(identity)
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}
	_, second, err := issuer.IssueTokenPair(identity)
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}

	if first.Value == second.Value || first.UUID == second.UUID {
		t.Error("two issuances must not share a refresh value or uuid")
	}
}

func TestReissueAccessToken_KeepsUUID(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	identity := &Identity{Username: "alice", Role: RoleUser}

	pair, err := issuer.ReissueAccessToken(identity, "rt-uuid-1")
	if err != nil {
		t.Fatalf("ReissueAccessToken() error = %v", err)
	}
	if pair.RefreshToken != "" {
		t.Error("reissued pair must not carry a refresh value")
	}

	claims, err := issuer.Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.RefreshTokenUUID != "rt-uuid-1" {
		t.Errorf("RefreshTokenUUID = %q, want rt-uuid-1", claims.RefreshTokenUUID)
	}

	if _, err := issuer.ReissueAccessToken(identity, ""); err == nil {
		t.Error("ReissueAccessToken() with empty uuid should fail")
	}
}

func TestNewTokenIssuer_ShortSecret(t *testing.T) {
	if _, err := NewTokenIssuer(IssuerConfig{Secret: "short"}); err == nil {
		t.Error("NewTokenIssuer() should reject a short secret")
	}
}

func TestVerify_Rejects(t *testing.T) {
	clock := newTestClock()
	issuer := newTestIssuer(t, clock)
	identity := &Identity{Username: "alice", Role: RoleUser}

	pair, _, err := issuer.IssueTokenPair(identity)
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}

	otherSecret, err := NewTokenIssuer(IssuerConfig{Secret: strings.Repeat("x", 40)}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	otherAudience, err := NewTokenIssuer(IssuerConfig{Secret: testSecret, Audience: "admin"}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	otherIssuer, err := NewTokenIssuer(IssuerConfig{Secret: testSecret, Issuer: "evil.example"}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	// Flip one character of the signature.
	sig := pair.AccessToken[strings.LastIndex(pair.AccessToken, ".")+1:]
	flipped := "A"
	if sig[0] == 'A' {
		flipped = "B"
	}
	tampered := pair.AccessToken[:len(pair.AccessToken)-len(sig)] + flipped + sig[1:]

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   "alice",
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ID:        "jti",
		},
		RefreshTokenUUID: "uuid",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		verify *TokenIssuer
	}{
		{"empty", "", issuer},
		{"garbage", "not-a-valid-jwt", issuer},
		{"tampered signature", tampered, issuer},
		{"wrong secret", pair.AccessToken, otherSecret},
		{"wrong audience", pair.AccessToken, otherAudience},
		{"wrong issuer", pair.AccessToken, otherIssuer},
		{"alg none", noneToken, issuer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.verify.Verify(tt.token)
			if err != ErrTokenInvalid { //nolint:errorlint // exact sentinel, nothing may wrap it
				t.Errorf("Verify() error = %v, want exactly ErrTokenInvalid", err)
			}
		})
	}
}

func TestVerify_Expired(t *testing.T) {
	clock := newTestClock()
	issuer := newTestIssuer(t, clock)

	pair, _, err := issuer.IssueTokenPair(&Identity{Username: "alice"})
	if err != nil {
		t.Fatalf("IssueTokenPair() error = %v", err)
	}

	clock.Advance(DefaultAccessTokenTTL - time.Minute)
	if _, err := issuer.Verify(pair.AccessToken); err != nil {
		t.Fatalf("Verify() before expiry error = %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := issuer.Verify(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify() after expiry error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerify_MissingCorrelation(t *testing.T) {
	clock := newTestClock()
	issuer := newTestIssuer(t, clock)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   "alice",
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ID:        "jti",
		},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	if _, err := issuer.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
	}
}
