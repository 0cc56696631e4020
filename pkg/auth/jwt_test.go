package auth

import (
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken(42, "visitor@example.com", "visitor", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := Parse(token, "secret")
	if err != nil {
		t.Fatal(err)
	}
	if claims.Sub != 42 || claims.Email != "visitor@example.com" || claims.Role != "visitor" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewAccessToken(42, "visitor@example.com", "visitor", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Parse(token, "other"); err == nil {
		t.Error("token signed with a different secret was accepted")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := NewAccessToken(42, "visitor@example.com", "visitor", "secret", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Parse(token, "secret"); err == nil {
		t.Error("expired token was accepted")
	}
}
