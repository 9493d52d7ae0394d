package model

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	fullNamePattern = regexp.MustCompile(`^[A-Za-z\s]+$`)
)

// アカウント項目の長さ制約
const (
	MinFullNameLength = 4
	MaxFullNameLength = 20
	MinUsernameLength = 3
	MaxUsernameLength = 20
	MinPasswordLength = 8
	MaxPasswordLength = 15
)

// ValidateFullName は氏名を検証する。英字と空白のみで、2語以上であること。
func ValidateFullName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < MinFullNameLength || n > MaxFullNameLength {
		return NewValidationError("Full name must be between 4 and 20 characters long")
	}
	if !fullNamePattern.MatchString(name) {
		return NewValidationError("Full name must contain only letters and spaces")
	}
	if len(strings.Fields(name)) < 2 {
		return NewValidationError("Full name must contain at least two words")
	}
	return nil
}

// ValidateUsername はユーザー名を検証する。
func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength {
		return NewValidationError("Username must be at least 3 characters long")
	}
	if n > MaxUsernameLength {
		return NewValidationError("Username must be at most 20 characters long")
	}
	if !usernamePattern.MatchString(username) {
		return NewValidationError("Username must contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail はメールアドレスを検証する。表示名付きの形式は受け付けない。
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return NewValidationError("Invalid email address")
	}
	return nil
}

// ValidatePassword はパスワードの長さを検証する。
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return NewValidationError("Password must be at least 8 characters long")
	}
	if n > MaxPasswordLength {
		return NewValidationError("Password must be at most 15 characters long")
	}
	return nil
}

// Validate は指定されたフィールドのみを検証する。
// 1つもフィールドがない場合はValidationFailedを返す。
func (p ProfilePatch) Validate() error {
	if p.IsEmpty() {
		return NewValidationError("At least one field must be provided for update")
	}
	if p.FullName != nil {
		if err := ValidateFullName(*p.FullName); err != nil {
			return err
		}
	}
	if p.Username != nil {
		if err := ValidateUsername(*p.Username); err != nil {
			return err
		}
	}
	if p.Email != nil {
		if err := ValidateEmail(*p.Email); err != nil {
			return err
		}
	}
	if p.Password != nil {
		if err := ValidatePassword(*p.Password); err != nil {
			return err
		}
	}
	return nil
}
