// Package jwt реализует выпуск и разбор JWT токенов координатора.
//
// Выпускаются два вида токенов: короткоживущий access для запросов и
// подключений по websocket и долгоживущий refresh для ротации сессии.
package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind вид токена
type Kind string

const (
	// KindAccess токен для доступа к API и websocket.
	KindAccess Kind = "access"
	// KindRefresh токен для обновления пары токенов.
	KindRefresh Kind = "refresh"
)

// Maker описывает интерфейс для генерации и парсинга JWT токенов.
type Maker interface {
	GenerateToken(accountID, username, role string, kind Kind) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// CustomClaims описывает данные аккаунта, хранящиеся в JWT.
type CustomClaims struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	Kind      Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// MakerImpl реализует Maker с использованием секретного ключа и времени жизни токенов.
type MakerImpl struct {
	secretKey  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewJWTMaker создаёт новый экземпляр MakerImpl.
func NewJWTMaker(secretKey string, accessTTL, refreshTTL time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey:  secretKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}
