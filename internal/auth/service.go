// Package auth はサインアップ・サインインとセッショントークンを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/expensebook/internal/model"
	"github.com/hitoshi/expensebook/internal/repository"
)

// SignUpInput はサインアップの入力を表す。
type SignUpInput struct {
	FullName string
	Username string
	Email    string
	Password string
}

// Validate は全フィールドを検証する。
func (in SignUpInput) Validate() error {
	if err := model.ValidateFullName(in.FullName); err != nil {
		return err
	}
	if err := model.ValidateUsername(in.Username); err != nil {
		return err
	}
	if err := model.ValidateEmail(in.Email); err != nil {
		return err
	}
	return model.ValidatePassword(in.Password)
}

// Session は発行したセッショントークンと対象アカウントを表す。
type Session struct {
	Account   *model.Account
	Token     string
	ExpiresAt time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accountRepo repository.AccountRepository
	tokens      *TokenService
	hasher      *PasswordHasher
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(accountRepo repository.AccountRepository, tokens *TokenService, hasher *PasswordHasher) *Service {
	return &Service{
		accountRepo: accountRepo,
		tokens:      tokens,
		hasher:      hasher,
		now:         time.Now,
	}
}

// SignUp はアカウントを作成し、セッションを発行する。
// ユーザー名・メールアドレスが使用済みの場合はConflictを返す。
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*Session, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.accountRepo.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by username: %w", err)
	}
	if existing != nil {
		return nil, model.NewUsernameTakenError()
	}
	existing, err = s.accountRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	account := &model.Account{
		ID:           uuid.New().String(),
		FullName:     in.FullName,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// 同時サインアップによる重複はリポジトリの一意制約がConflictとして返す
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, err
	}

	slog.Info("account created",
		slog.String("account_id", account.ID),
		slog.String("username", account.Username),
	)

	return s.issue(account)
}

// SignIn はユーザー名とパスワードを照合し、セッションを発行する。
// ユーザー名の不在とパスワード不一致は区別せず同じエラーを返す。
func (s *Service) SignIn(ctx context.Context, username, password string) (*Session, error) {
	if model.ValidateUsername(username) != nil || model.ValidatePassword(password) != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	account, err := s.accountRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by username: %w", err)
	}
	if account == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Matches(account.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Info("sign-in rejected", slog.String("account_id", account.ID))
		return nil, model.NewInvalidCredentialsError()
	}

	slog.Info("account signed in", slog.String("account_id", account.ID))
	return s.issue(account)
}

// CurrentAccount はトークンが示すアカウントを取得する。
func (s *Service) CurrentAccount(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError()
	}
	return account, nil
}

// Reissue はアカウントに対するトークンを再発行する。
func (s *Service) Reissue(account *model.Account) (*Session, error) {
	return s.issue(account)
}

func (s *Service) issue(account *model.Account) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Session{Account: account, Token: token, ExpiresAt: expiresAt}, nil
}
