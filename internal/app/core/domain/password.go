package domain

import (
	"strings"
	"unicode"
)

const (
	// PasswordMinLength 密碼最短長度
	PasswordMinLength = 8
	// PasswordSymbols 允許且必須至少出現一個的符號
	PasswordSymbols = "!@#$%^&*"
)

// ValidatePassword 密碼強度規則：
// 長度 >= 8，至少一個大寫、一個數字、一個 PasswordSymbols 中的符號，
// 只允許英文字母、數字與上述符號
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLength {
		return ErrWeakSecret
	}
	var upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r > unicode.MaxASCII:
			return ErrWeakSecret
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		case unicode.IsLower(r):
		default:
			return ErrWeakSecret
		}
	}
	if !upper || !digit || !symbol {
		return ErrWeakSecret
	}
	return nil
}
