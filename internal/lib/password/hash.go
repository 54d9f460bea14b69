// Package password реализует хеширование, проверку и генерацию паролей.
package password

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	alphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	defaultLength = 16
	// наибольший байт, кратный длине алфавита, чтобы символы были равновероятны
	maxByte = 256 - 256%len(alphabet)
)

// GetHash возвращает bcrypt‑хэш пароля для хранения в базе.
func GetHash(password string) (string, error) {
	const op = "password.GetHash"
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashedPassword), nil
}

// CompareHash сравнивает bcrypt‑хэш с введённым паролем.
//
// Возвращает nil, если пароль соответствует хэшу.
func CompareHash(originalHash, externalPassword string) error {
	const op = "password.CompareHash"
	if err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(externalPassword)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Generate возвращает криптостойкий случайный пароль из n латинских букв
// и цифр. При n <= 0 длина равна defaultLength. Используется для гостевых
// аккаунтов.
func Generate(n int) string {
	if n <= 0 {
		n = defaultLength
	}
	res := make([]byte, 0, n)
	buf := make([]byte, 2*n)
	for len(res) < n {
		// rand.Read не возвращает ошибок
		_, _ = rand.Read(buf)
		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}
			res = append(res, alphabet[int(b)%len(alphabet)])
			if len(res) == n {
				break
			}
		}
	}
	return string(res)
}
