package util

import (
	"net/http/httptest"
	"testing"
	"time"

	"instapulse/pkg/rbac"
)

func TestJWTRoundTripCarriesRole(t *testing.T) {
	token, err := GenerateJWT(42, "a@b.co", rbac.RoleIntern, "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "a@b.co" || claims.Role != rbac.RoleIntern {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseJWTRejects(t *testing.T) {
	good, _ := GenerateJWT(1, "a@b.co", rbac.RoleAdmin, "secret", time.Hour)
	expired, _ := GenerateJWT(1, "a@b.co", rbac.RoleAdmin, "secret", -time.Minute)
	badRole, _ := GenerateJWT(1, "a@b.co", rbac.Role("guest"), "secret", time.Hour)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", good, "other"},
		{"expired", expired, "secret"},
		{"unknown role", badRole, "secret"},
		{"garbage", "not-a-token", "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJWT(tt.token, tt.secret); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := ExtractToken(r); got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("admin123")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword("admin123", hash) {
		t.Error("correct password rejected")
	}
	if CheckPassword("admin124", hash) {
		t.Error("wrong password accepted")
	}
}
