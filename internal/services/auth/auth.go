// Package auth реализует шлюз идентификации координатора: вход по паролю,
// гостевую регистрацию, ротацию токенов и проверку access-токена.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/parkease-coordinator/internal/config"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/jwt"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/password"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

const guestPasswordLen = 12

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTrialExpired       = errors.New("trial period has ended")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Repository описывает хранилище аккаунтов и сессий, нужное шлюзу.
type Repository interface {
	CreateAccount(ctx context.Context, a models.Account) (string, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	GetActiveSessionByToken(ctx context.Context, token string) (*models.Session, error)
	RotateSessionToken(ctx context.Context, sessionID, token string, at time.Time) error
}

// Sessions реестр сессий устройств.
type Sessions interface {
	StartSession(ctx context.Context, accountID string, device models.Device, credentialRef, ip string) (*models.Session, int, error)
	EndSession(ctx context.Context, accountID, deviceID string) error
}

// Tokens пара выданных токенов.
type Tokens struct {
	Access  string `json:"accessToken"`
	Refresh string `json:"refreshToken"`
}

// LoginResult результат успешного входа.
type LoginResult struct {
	Tokens
	Account         *models.Account
	State           models.LifecycleState
	LoggedOutOthers bool
}

// GuestResult результат гостевой регистрации со сгенерированными
// учётными данными.
type GuestResult struct {
	LoginResult
	Username string
	Password string
}

type Service struct {
	log      *slog.Logger
	repo     Repository
	sessions Sessions
	tokens   jwt.Maker
	cfg      config.Lifecycle
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(log *slog.Logger, repo Repository, sessions Sessions, tokens jwt.Maker, cfg config.Lifecycle, opts ...Option) *Service {
	s := &Service{
		log:      log,
		repo:     repo,
		sessions: sessions,
		tokens:   tokens,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login проверяет пароль и открывает сессию устройства, вытесняя
// остальные устройства аккаунта.
func (s *Service) Login(ctx context.Context, username, rawPassword string, device models.Device, ip string) (*LoginResult, error) {
	const op = "auth.Login"

	account, err := s.repo.GetAccountByUsername(ctx, username)
	if errors.Is(err, models.ErrAccountNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(account.PasswordHash, rawPassword); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	state := account.State(s.now())
	switch state.Kind {
	case models.StateExpired:
		return nil, fmt.Errorf("%s: %w", op, ErrTrialExpired)
	case models.StateDisabled:
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	res, err := s.open(ctx, account, device, ip)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res.State = state
	return res, nil
}

// GuestSignup создаёт гостевой аккаунт оператора с коротким пробным
// периодом и сразу открывает сессию устройства.
func (s *Service) GuestSignup(ctx context.Context, device models.Device, ip string) (*GuestResult, error) {
	const op = "auth.GuestSignup"

	now := s.now()
	username := fmt.Sprintf("guest_%d", now.UnixMilli())
	raw := password.Generate(guestPasswordLen)
	hash, err := password.GetHash(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	trialEnd := now.AddDate(0, 0, s.cfg.GuestTrialDays)
	account := models.Account{
		Username:       username,
		PasswordHash:   hash,
		FullName:       "Guest User",
		Role:           models.RoleOperator,
		IsActive:       true,
		IsGuest:        true,
		TrialStartDate: now,
		TrialEndDate:   &trialEnd,
	}
	id, err := s.repo.CreateAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	account.ID = id

	res, err := s.open(ctx, &account, device, ip)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res.State = account.State(now)

	s.log.Info("guest account created", sl.Account(id), slog.String("username", username))
	return &GuestResult{LoginResult: *res, Username: username, Password: raw}, nil
}

// Refresh выдаёт новую пару токенов по действующему refresh-токену
// активной сессии и заменяет токен в сессии.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	const op = "auth.Refresh"

	claims, err := s.tokens.ParseToken(refreshToken)
	if err != nil || claims.Kind != jwt.KindRefresh {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	sess, err := s.repo.GetActiveSessionByToken(ctx, refreshToken)
	if errors.Is(err, models.ErrSessionNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sess.AccountID != claims.AccountID {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	tokens, err := s.issue(claims.AccountID, claims.Username, claims.Role)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.RotateSessionToken(ctx, sess.ID, tokens.Refresh, s.now()); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tokens, nil
}

// Logout завершает сессию устройства.
func (s *Service) Logout(ctx context.Context, accountID, deviceID string) error {
	const op = "auth.Logout"
	if err := s.sessions.EndSession(ctx, accountID, deviceID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Verify проверяет access-токен и возвращает личность его владельца.
// Аккаунт должен существовать и быть активным.
func (s *Service) Verify(ctx context.Context, token string) (models.Identity, error) {
	const op = "auth.Verify"

	claims, err := s.tokens.ParseToken(token)
	if err != nil || claims.Kind != jwt.KindAccess {
		return models.Identity{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	account, err := s.repo.GetAccount(ctx, claims.AccountID)
	if errors.Is(err, models.ErrAccountNotFound) {
		return models.Identity{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	if !account.IsActive {
		return models.Identity{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return models.Identity{
		AccountID: account.ID,
		Username:  account.Username,
		Role:      account.Role,
	}, nil
}

// Seed создаёт администратора и демонстрационный аккаунт, если их ещё нет.
// Повторный запуск ничего не меняет.
func (s *Service) Seed(ctx context.Context, cfg config.Seed) error {
	const op = "auth.Seed"

	now := s.now()
	demoEnd := now.AddDate(0, 0, s.cfg.DemoTrialDays)
	accounts := []struct {
		password string
		account  models.Account
	}{
		{
			password: cfg.AdminPassword,
			account: models.Account{
				Username:       cfg.AdminUsername,
				FullName:       "System Administrator",
				Role:           models.RoleAdmin,
				IsActive:       true,
				IsPaid:         true,
				TrialStartDate: now,
			},
		},
		{
			password: cfg.DemoPassword,
			account: models.Account{
				Username:       cfg.DemoUsername,
				FullName:       "Demo Operator",
				Role:           models.RoleOperator,
				IsActive:       true,
				TrialStartDate: now,
				TrialEndDate:   &demoEnd,
			},
		},
	}

	for _, a := range accounts {
		_, err := s.repo.GetAccountByUsername(ctx, a.account.Username)
		if err == nil {
			s.log.Debug("seed account already exists", slog.String("username", a.account.Username))
			continue
		}
		if !errors.Is(err, models.ErrAccountNotFound) {
			return fmt.Errorf("%s: %w", op, err)
		}

		hash, err := password.GetHash(a.password)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		a.account.PasswordHash = hash
		id, err := s.repo.CreateAccount(ctx, a.account)
		if errors.Is(err, models.ErrAccountExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("seed account created", sl.Account(id), slog.String("username", a.account.Username))
	}
	return nil
}

func (s *Service) open(ctx context.Context, account *models.Account, device models.Device, ip string) (*LoginResult, error) {
	tokens, err := s.issue(account.ID, account.Username, string(account.Role))
	if err != nil {
		return nil, err
	}
	_, evicted, err := s.sessions.StartSession(ctx, account.ID, device, tokens.Refresh, ip)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Tokens:          *tokens,
		Account:         account,
		LoggedOutOthers: evicted > 0,
	}, nil
}

func (s *Service) issue(accountID, username, role string) (*Tokens, error) {
	access, err := s.tokens.GenerateToken(accountID, username, role, jwt.KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.GenerateToken(accountID, username, role, jwt.KindRefresh)
	if err != nil {
		return nil, err
	}
	return &Tokens{Access: access, Refresh: refresh}, nil
}
