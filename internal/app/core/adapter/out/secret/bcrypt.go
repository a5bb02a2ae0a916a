package secret

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

// BcryptVerifier 以 bcrypt 雜湊密碼與 PIN
type BcryptVerifier struct {
	cost int
}

// NewBcryptVerifier cost <= 0 時使用 bcrypt.DefaultCost
func NewBcryptVerifier(cost int) *BcryptVerifier {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptVerifier{cost: cost}
}

func (v *BcryptVerifier) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), v.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify 雜湊格式錯誤也視為驗證失敗
func (v *BcryptVerifier) Verify(plaintext, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plaintext)) == nil
}

var _ usecase.SecretVerifier = (*BcryptVerifier)(nil)
