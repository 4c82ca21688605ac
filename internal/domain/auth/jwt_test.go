package auth

import (
	"testing"

	"conteo/internal/core/id"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	user := &User{
		ID:       id.New(),
		Username: "mlopez",
		Email:    "mlopez@example.com",
		Roles:    []string{RoleOperator, RoleSupervisor},
		Sites:    []string{"1000"},
	}

	token, expiresAt, err := svc.GenerateAccessToken(user)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if expiresAt.IsZero() {
		t.Fatal("expected non-zero expiry")
	}

	ctx, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if ctx.UserID != user.ID.String() {
		t.Errorf("UserID = %q, want %q", ctx.UserID, user.ID.String())
	}
	if ctx.Username != "mlopez" {
		t.Errorf("Username = %q, want mlopez", ctx.Username)
	}
	if len(ctx.Roles) != 2 || ctx.Roles[1] != RoleSupervisor {
		t.Errorf("Roles = %v", ctx.Roles)
	}
	if ctx.IsAdmin {
		t.Error("IsAdmin should be false")
	}
}

func TestJWTWrongSecret(t *testing.T) {
	signer := NewJWTService(DefaultJWTConfig("secret-a"))
	verifier := NewJWTService(DefaultJWTConfig("secret-b"))

	user := &User{ID: id.New(), Username: "mlopez", Roles: []string{RoleOperator}}
	token, _, err := signer.GenerateAccessToken(user)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatal("expected validation to fail with a different secret")
	}
}
