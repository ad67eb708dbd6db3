package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/stakehabit/backend/internal/ledger"
	"github.com/stakehabit/backend/internal/models"
)

// signupBonus is the welcome credit every new wallet starts with, in KSH.
const signupBonus = 500

var (
	// ErrDuplicateEmail is returned when registering with an email that
	// already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials is returned for a bad email/password pair. Login
	// never says which half was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type User struct {
	ID       uuid.UUID
	Email    string
	Username string
}

// ProfileCreator and WalletCreator are the slices of the repositories that
// registration needs inside its transaction.
type ProfileCreator interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Profile) error
}

type WalletCreator interface {
	CreateTx(ctx context.Context, tx pgx.Tx, w *models.Wallet) error
}

type Service interface {
	Register(ctx context.Context, email, password, username string) (*User, string, error)
	Login(ctx context.Context, email, password string) (*User, string, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

type service struct {
	repo     *Repository
	profiles ProfileCreator
	wallets  WalletCreator
	ledger   ledger.Service
	secret   []byte
}

func NewService(repo *Repository, profiles ProfileCreator, wallets WalletCreator, ledgerSvc ledger.Service, secret string) *service {
	return &service{
		repo:     repo,
		profiles: profiles,
		wallets:  wallets,
		ledger:   ledgerSvc,
		secret:   []byte(secret),
	}
}

var _ Service = (*service)(nil)

// Register provisions the account, profile, and wallet, and credits the
// welcome bonus, all in one transaction. A failure at any step leaves no
// partial user behind.
func (s *service) Register(ctx context.Context, email, password, username string) (*User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if username == "" {
		// Default to the email local part, same as the signup form does.
		username = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback(ctx)

	id, err := s.repo.CreateTx(ctx, tx, email, string(hash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, "", ErrDuplicateEmail
		}
		return nil, "", err
	}
	if err := s.profiles.CreateTx(ctx, tx, &models.Profile{ID: uuid.New(), UserID: id, Username: &username}); err != nil {
		return nil, "", err
	}
	if err := s.wallets.CreateTx(ctx, tx, &models.Wallet{ID: uuid.New(), UserID: id}); err != nil {
		return nil, "", err
	}
	if _, err := s.ledger.Apply(ctx, tx, ledger.Entry{
		UserID:      id,
		Type:        models.TxTypeDeposit,
		Amount:      signupBonus,
		Description: "Welcome bonus",
	}); err != nil {
		return nil, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", err
	}

	u := &User{ID: id, Email: email, Username: username}
	token, err := s.issueToken(id)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	id, hash, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.issueToken(id)
	if err != nil {
		return nil, "", err
	}
	return &User{ID: id, Email: email}, token, nil
}

func (s *service) issueToken(userID uuid.UUID) (string, error) {
	c := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(_ context.Context, token string) (uuid.UUID, error) {
	tok, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	c, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || !tok.Valid {
		return uuid.Nil, errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token subject: %w", err)
	}
	return id, nil
}
