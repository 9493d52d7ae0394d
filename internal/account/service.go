// Package account はアカウントのプロフィール管理を提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/expensebook/internal/model"
	"github.com/hitoshi/expensebook/internal/repository"
)

// PasswordHasher はパスワードのハッシュ化と照合のインターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Matches(hash, password string) (bool, error)
}

// Service はプロフィール更新のビジネスロジックを提供する。
type Service struct {
	accountRepo repository.AccountRepository
	hasher      PasswordHasher
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accountRepo repository.AccountRepository, hasher PasswordHasher) *Service {
	return &Service{
		accountRepo: accountRepo,
		hasher:      hasher,
		now:         time.Now,
	}
}

// UpdateProfile は指定されたフィールドのみを更新し、更新後のアカウントを返す。
// 現在値と同じ値、または他アカウントが使用中のユーザー名・メールアドレスはConflictを返す。
func (s *Service) UpdateProfile(ctx context.Context, accountID string, patch model.ProfilePatch) (*model.Account, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError()
	}

	if patch.FullName != nil {
		if *patch.FullName == account.FullName {
			return nil, model.NewSameValueError("Full name")
		}
		account.FullName = *patch.FullName
	}

	if patch.Username != nil {
		if *patch.Username == account.Username {
			return nil, model.NewSameValueError("Username")
		}
		if err := s.ensureUnused(ctx, s.accountRepo.FindByUsername, *patch.Username, model.NewUsernameTakenError); err != nil {
			return nil, err
		}
		account.Username = *patch.Username
	}

	if patch.Email != nil {
		if *patch.Email == account.Email {
			return nil, model.NewSameValueError("Email")
		}
		if err := s.ensureUnused(ctx, s.accountRepo.FindByEmail, *patch.Email, model.NewEmailTakenError); err != nil {
			return nil, err
		}
		account.Email = *patch.Email
	}

	if patch.Password != nil {
		same, err := s.hasher.Matches(account.PasswordHash, *patch.Password)
		if err != nil {
			return nil, err
		}
		if same {
			return nil, model.NewSameValueError("Password")
		}
		hash, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, err
		}
		account.PasswordHash = hash
	}

	account.UpdatedAt = s.now()
	if err := s.accountRepo.UpdateProfile(ctx, account); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewAccountNotFoundError()
		}
		return nil, err
	}

	slog.Info("account profile updated", slog.String("account_id", account.ID))
	return account, nil
}

// ensureUnused は値が他アカウントで使われていないことを確認する。
func (s *Service) ensureUnused(
	ctx context.Context,
	find func(context.Context, string) (*model.Account, error),
	value string,
	taken func() *model.APIError,
) error {
	other, err := find(ctx, value)
	if err != nil {
		return fmt.Errorf("failed to check uniqueness: %w", err)
	}
	if other != nil {
		return taken()
	}
	return nil
}
