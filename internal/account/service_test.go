package account

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/expensebook/internal/auth"
	"github.com/hitoshi/expensebook/internal/model"
	"github.com/hitoshi/expensebook/internal/repository"
)

func ptr[T any](v T) *T { return &v }

// setup はjaneとjohnの2アカウントを持つサービスを返す。
func setup(t *testing.T) (*Service, *repository.MemoryAccountRepo, *auth.PasswordHasher) {
	t.Helper()
	ctx := context.Background()

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewPasswordHasher() error = %v", err)
	}
	repo := repository.NewMemoryStore().Accounts()

	for _, a := range []struct{ id, name, username, email string }{
		{"jane-id", "Jane Doe", "jane_doe", "jane@example.com"},
		{"john-id", "John Roe", "john_roe", "john@example.com"},
	} {
		hash, err := hasher.Hash("password123")
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		err = repo.Create(ctx, &model.Account{
			ID: a.id, FullName: a.name, Username: a.username, Email: a.email, PasswordHash: hash,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	return NewService(repo, hasher), repo, hasher
}

func TestUpdateProfile_UpdatesOnlyGivenFields(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	updated, err := svc.UpdateProfile(ctx, "jane-id", model.ProfilePatch{FullName: ptr("Jane Smith")})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.FullName != "Jane Smith" {
		t.Errorf("FullName = %q, want %q", updated.FullName, "Jane Smith")
	}

	stored, _ := repo.FindByID(ctx, "jane-id")
	if stored.FullName != "Jane Smith" || stored.Username != "jane_doe" || stored.Email != "jane@example.com" {
		t.Errorf("unexpected stored account: %+v", stored)
	}
}

func TestUpdateProfile_PasswordIsRehashed(t *testing.T) {
	svc, repo, hasher := setup(t)
	ctx := context.Background()

	if _, err := svc.UpdateProfile(ctx, "jane-id", model.ProfilePatch{Password: ptr("newpass456")}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	stored, _ := repo.FindByID(ctx, "jane-id")
	ok, err := hasher.Matches(stored.PasswordHash, "newpass456")
	if err != nil || !ok {
		t.Errorf("new password does not match stored hash: ok=%v err=%v", ok, err)
	}
}

func TestUpdateProfile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		patch    model.ProfilePatch
		wantKind model.ErrorKind
		wantCode string
	}{
		{"フィールドなし", model.ProfilePatch{}, model.KindValidationFailed, model.ErrCodeValidationFailed},
		{"ユーザー名形式不正", model.ProfilePatch{Username: ptr("x")}, model.KindValidationFailed, model.ErrCodeValidationFailed},
		{"同じ氏名", model.ProfilePatch{FullName: ptr("Jane Doe")}, model.KindConflict, model.ErrCodeSameValue},
		{"同じユーザー名", model.ProfilePatch{Username: ptr("jane_doe")}, model.KindConflict, model.ErrCodeSameValue},
		{"同じメール", model.ProfilePatch{Email: ptr("jane@example.com")}, model.KindConflict, model.ErrCodeSameValue},
		{"同じパスワード", model.ProfilePatch{Password: ptr("password123")}, model.KindConflict, model.ErrCodeSameValue},
		{"他人のユーザー名", model.ProfilePatch{Username: ptr("john_roe")}, model.KindConflict, model.ErrCodeUsernameTaken},
		{"他人のメール", model.ProfilePatch{Email: ptr("john@example.com")}, model.KindConflict, model.ErrCodeEmailTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := setup(t)
			_, err := svc.UpdateProfile(context.Background(), "jane-id", tt.patch)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := model.KindOf(err); got != tt.wantKind {
				t.Errorf("kind = %q, want %q", got, tt.wantKind)
			}
			if apiErr, ok := err.(*model.APIError); !ok || apiErr.Code != tt.wantCode {
				t.Errorf("error = %v, want code %s", err, tt.wantCode)
			}

			stored, _ := repo.FindByID(context.Background(), "jane-id")
			if stored.FullName != "Jane Doe" || stored.Username != "jane_doe" {
				t.Errorf("account must not change on error: %+v", stored)
			}
		})
	}
}

func TestUpdateProfile_UnknownAccount(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.UpdateProfile(context.Background(), "missing", model.ProfilePatch{FullName: ptr("Some Body")})
	if model.KindOf(err) != model.KindNotFound {
		t.Errorf("kind = %q, want %q", model.KindOf(err), model.KindNotFound)
	}
}
