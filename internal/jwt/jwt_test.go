package jwt

import (
	"testing"
	"time"
)

func TestGenerateAndDecode(t *testing.T) {
	tm := NewTokenManager("test-secret")

	token, err := tm.GenerateAccessToken("jti-1", map[string]any{"workstation": "line-3"})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	claims, err := tm.DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken failed: %v", err)
	}

	if GetTokenID(claims) != "jti-1" {
		t.Errorf("token ID = %q, want jti-1", GetTokenID(claims))
	}
	if !IsAccessToken(claims) {
		t.Error("expected access token")
	}
	if got := GetPayloadString(claims, "workstation"); got != "line-3" {
		t.Errorf("payload workstation = %q, want line-3", got)
	}
	if got := GetPayloadString(claims, "absent"); got != "" {
		t.Errorf("absent payload key = %q, want empty", got)
	}
}

func TestDecodeRejectsWrongKey(t *testing.T) {
	token, err := NewTokenManager("secret-a").GenerateAccessToken("jti", nil)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := NewTokenManager("secret-b").DecodeToken(token); err == nil {
		t.Error("expected decode failure with wrong key")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("secret")
	if _, err := tm.DecodeToken("not-a-token"); err == nil {
		t.Error("expected decode failure")
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	tm := NewTokenManager("")
	if _, err := tm.GenerateAccessToken("jti", nil); err == nil {
		t.Error("expected error with empty signing key")
	}
}

func TestTokenExpiry(t *testing.T) {
	tm := NewTokenManager("secret")

	token, err := tm.GenerateAccessTokenWithExpiry("jti", nil, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessTokenWithExpiry failed: %v", err)
	}

	expiry, err := tm.GetTokenExpiryTime(token)
	if err != nil {
		t.Fatalf("GetTokenExpiryTime failed: %v", err)
	}
	until := time.Until(expiry)
	if until < 59*time.Minute || until > 61*time.Minute {
		t.Errorf("expiry %v not about an hour away", until)
	}

	expired, err := tm.IsTokenExpired(token)
	if err != nil {
		t.Fatalf("IsTokenExpired failed: %v", err)
	}
	if expired {
		t.Error("fresh token reported expired")
	}
}
