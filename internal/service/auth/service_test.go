package auth

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"instapulse/internal/model"
	"instapulse/internal/testutil"
	"instapulse/internal/util"
	"instapulse/pkg/apperr"
	"instapulse/pkg/config"
	"instapulse/pkg/rbac"
)

const testSecret = "test-secret"

func newTestService(t *testing.T) (*Service, *testutil.MemStore, rbac.Subject) {
	t.Helper()
	store := testutil.NewMemStore()
	svc := NewService(store.Accounts(), config.JWTConfig{Secret: testSecret, TTLHours: 1}, zap.NewNop())

	err := svc.BootstrapAdmin(context.Background(), config.AdminConfig{
		Email:     "admin@company.com",
		Password:  "admin123",
		FirstName: "Admin",
		LastName:  "User",
	})
	if err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}
	admin, err := store.Accounts().FindByEmail(context.Background(), "admin@company.com")
	if err != nil {
		t.Fatalf("seeded admin missing: %v", err)
	}
	return svc, store, admin.Subject()
}

func TestBootstrapAdminIsIdempotent(t *testing.T) {
	svc, store, admin := newTestService(t)
	if admin.Role != rbac.RoleAdmin {
		t.Errorf("seeded role = %s", admin.Role)
	}
	if err := svc.BootstrapAdmin(context.Background(), config.AdminConfig{Email: "admin@company.com", Password: "other"}); err != nil {
		t.Fatal(err)
	}
	users, _ := store.Accounts().List(context.Background())
	if len(users) != 1 {
		t.Errorf("users = %d, want 1", len(users))
	}
}

func TestLogin(t *testing.T) {
	svc, _, admin := newTestService(t)

	res, err := svc.Login(context.Background(), "admin@company.com", "admin123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.ID != admin.ID || res.User.FirstName != "Admin" {
		t.Errorf("user = %+v", res.User)
	}
	claims, err := util.ParseJWT(res.Token, testSecret)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.UserID != admin.ID || claims.Role != rbac.RoleAdmin || claims.Email != "admin@company.com" {
		t.Errorf("claims = %+v", claims)
	}

	subject, err := svc.Authenticate(res.Token)
	if err != nil || subject != admin {
		t.Errorf("Authenticate = %+v, %v", subject, err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     apperr.Kind
	}{
		{"missing password", "admin@company.com", "", apperr.KindValidation},
		{"unknown email", "nobody@company.com", "admin123", apperr.KindUnauthorized},
		{"wrong password", "admin@company.com", "admin1234", apperr.KindUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.email, tt.password)
			if got := apperr.KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAuthenticateRejects(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Authenticate(""); apperr.PublicMessage(err) != "Access token required" {
		t.Errorf("empty token err = %v", err)
	}
	if _, err := svc.Authenticate("not-a-jwt"); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Errorf("garbage token err = %v", err)
	}
	other, _ := util.GenerateJWT(1, "a@b.co", rbac.RoleAdmin, "other-secret", 0)
	if _, err := svc.Authenticate(other); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Errorf("foreign token err = %v", err)
	}
}

func TestRegister(t *testing.T) {
	svc, _, admin := newTestService(t)
	ctx := context.Background()
	valid := RegisterInput{Email: "ivy@company.com", Password: "secret1", Role: "intern", FirstName: "Ivy", LastName: "Intern"}

	u, err := svc.Register(ctx, admin, valid)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == 0 || u.Role != rbac.RoleIntern || u.PasswordHash == valid.Password {
		t.Errorf("account = %+v", u)
	}

	with := func(mod func(*RegisterInput)) RegisterInput {
		in := valid
		in.Email = "new@company.com"
		mod(&in)
		return in
	}
	tests := []struct {
		name  string
		actor rbac.Subject
		in    RegisterInput
		want  apperr.Kind
		msg   string
	}{
		{"intern actor", u.Subject(), with(func(*RegisterInput) {}), apperr.KindForbidden, "Admin access required"},
		{"missing last name", admin, with(func(in *RegisterInput) { in.LastName = "" }), apperr.KindValidation, "All fields are required"},
		{"bad email", admin, with(func(in *RegisterInput) { in.Email = "not-an-email" }), apperr.KindValidation, "Invalid email format"},
		{"short password", admin, with(func(in *RegisterInput) { in.Password = "12345" }), apperr.KindValidation, "Password must be at least 6 characters"},
		{"bad role", admin, with(func(in *RegisterInput) { in.Role = "superuser" }), apperr.KindValidation, "Invalid role"},
		{"duplicate email", admin, valid, apperr.KindConflict, "User already exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.actor, tt.in)
			if got := apperr.KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s (err %v)", got, tt.want, err)
			}
			if got := apperr.PublicMessage(err); got != tt.msg {
				t.Errorf("message = %q, want %q", got, tt.msg)
			}
		})
	}
}

func TestDeleteUser(t *testing.T) {
	svc, store, admin := newTestService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, admin, RegisterInput{Email: "ivy@company.com", Password: "secret1", Role: "intern", FirstName: "Ivy", LastName: "I"})
	if err != nil {
		t.Fatal(err)
	}
	p := &model.Post{UserID: u.ID, URL: "https://instagram.com/p/x", ExternalID: "x"}
	if err := store.Posts().CreateWithEvent(ctx, p, ""); err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteUser(ctx, admin, admin.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("self delete err = %v", err)
	}
	if err := svc.DeleteUser(ctx, u.Subject(), admin.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("intern delete err = %v", err)
	}
	if err := svc.DeleteUser(ctx, admin, 999); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown delete err = %v", err)
	}
	if err := svc.DeleteUser(ctx, admin, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := store.Posts().FindByID(ctx, p.ID); err == nil {
		t.Error("post survived account delete")
	}
	if _, err := svc.Profile(ctx, u.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("profile of deleted user err = %v", err)
	}
}

func TestListUsersNewestFirst(t *testing.T) {
	svc, _, admin := newTestService(t)
	ctx := context.Background()
	u, _ := svc.Register(ctx, admin, RegisterInput{Email: "ivy@company.com", Password: "secret1", Role: "intern", FirstName: "Ivy", LastName: "I"})

	users, err := svc.ListUsers(ctx, admin)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].ID != u.ID {
		t.Errorf("users = %+v", users)
	}
	if _, err := svc.ListUsers(ctx, u.Subject()); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("intern ListUsers err = %v", err)
	}
}
