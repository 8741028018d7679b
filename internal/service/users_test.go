package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"sodaledger/backend/internal/domain"
)

func TestBootstrapCreatesAdminOnce(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	if err := svc.Bootstrap(ctx, "admin123"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := svc.Bootstrap(ctx, "other-password"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	count, _ := repo.CountUsers(ctx)
	if count != 1 {
		t.Fatalf("expected one user after bootstrap, got %d", count)
	}

	actor, err := svc.Authenticate(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("expected default credentials to work: %v", err)
	}
	if actor.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", actor.Role)
	}
}

func TestAuthenticateRejectsWrongPasswordAndUnknownUserAlike(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if err := svc.Bootstrap(ctx, "admin123"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	_, wrongPassword := svc.Authenticate(ctx, "admin", "wrong")
	_, unknownUser := svc.Authenticate(ctx, "ghost", "admin123")
	_, emptyInput := svc.Authenticate(ctx, "  ", "")

	for name, err := range map[string]error{"wrong password": wrongPassword, "unknown user": unknownUser, "empty": emptyInput} {
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("%s: expected invalid credentials, got %v", name, err)
		}
	}
	if wrongPassword.Error() != unknownUser.Error() {
		t.Fatalf("expected identical error text, got %q and %q", wrongPassword, unknownUser)
	}
}

func TestUsernamesAreCaseSensitive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, testAdmin, "Rina", "secret1", "staff"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := svc.CreateUser(ctx, testAdmin, "rina", "secret2", "staff"); err != nil {
		t.Fatalf("expected different-case username to be allowed: %v", err)
	}

	_, err := svc.CreateUser(ctx, testAdmin, " Rina ", "secret3", "admin")
	if !errors.Is(err, domain.ErrDuplicateUsername) {
		t.Fatalf("expected duplicate username, got %v", err)
	}
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected duplicate username to be a conflict")
	}

	if _, err := svc.Authenticate(ctx, "RINA", "secret1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected case-mismatched login to fail, got %v", err)
	}
}

func TestCreateUserValidatesInput(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
		role     string
	}{
		{name: "empty username", username: " ", password: "secret", role: "staff"},
		{name: "empty password", username: "budi", password: "", role: "staff"},
		{name: "unknown role", username: "budi", password: "secret", role: "owner"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateUser(ctx, testAdmin, tc.username, tc.password, tc.role); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	user, err := svc.CreateUser(ctx, testAdmin, "budi", "secret", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Role != domain.RoleStaff {
		t.Fatalf("expected default role staff, got %s", user.Role)
	}
	if !strings.HasPrefix(user.PasswordHash, "$2") {
		t.Fatalf("expected bcrypt hash to be stored")
	}
}

func TestLegacyDigestIsUpgradedOnLogin(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	sum := sha256.Sum256([]byte("admin123"))
	if _, err := repo.CreateUser(ctx, domain.User{
		Username:     "admin",
		PasswordHash: hex.EncodeToString(sum[:]),
		Role:         domain.RoleAdmin,
	}); err != nil {
		t.Fatalf("seed legacy user: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "admin", "nope"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected wrong password against legacy digest to fail, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "admin", "admin123"); err != nil {
		t.Fatalf("expected legacy digest login to work: %v", err)
	}

	user, err := repo.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !isPasswordHash(user.PasswordHash) {
		t.Fatalf("expected password to be upgraded to bcrypt, got %q", user.PasswordHash)
	}
	if _, err := svc.Authenticate(ctx, "admin", "admin123"); err != nil {
		t.Fatalf("expected login after upgrade: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.CreateUser(ctx, testAdmin, "rina", "secret1", "staff"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := svc.ChangePassword(ctx, testStaff, "wrong", "secret2"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := svc.ChangePassword(ctx, testStaff, "secret1", "123"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected short password to be rejected, got %v", err)
	}
	if err := svc.ChangePassword(ctx, testStaff, "secret1", "secret2"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "rina", "secret1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected old password to stop working")
	}
	if _, err := svc.Authenticate(ctx, "rina", "secret2"); err != nil {
		t.Fatalf("expected new password to work: %v", err)
	}
}

func TestPasswordLongerThanBcryptLimitIsValidationError(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	long := strings.Repeat("p", 73)

	if _, err := svc.CreateUser(ctx, testAdmin, "budi", long, "staff"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for long password, got %v", err)
	}
	if _, err := svc.CreateUser(ctx, testAdmin, "rina", "secret1", "staff"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := svc.ChangePassword(ctx, testStaff, "secret1", long); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for long new password, got %v", err)
	}
}

func TestListUsersOrderedByID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if err := svc.Bootstrap(ctx, "admin123"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := svc.CreateUser(ctx, testAdmin, "rina", "secret1", "staff"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	users, err := svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 || users[0].Username != "admin" || users[1].Username != "rina" {
		t.Fatalf("expected users ordered by id, got %+v", users)
	}
}
