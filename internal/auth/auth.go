// Package auth is the identity adapter. It authenticates a wallet and hands
// the rest of the system nothing but the authenticated wallet id; the engine
// never sees credentials or tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/db"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/errs"
	"github.com/SrMessiSOL/crypto-ufos-sub000/internal/models"
)

// Service handles wallet registration and login.
type Service struct {
	db     *db.DB
	secret []byte
}

// NewService creates an auth service signing tokens with the given secret.
func NewService(database *db.DB, secret string) *Service {
	return &Service{db: database, secret: []byte(secret)}
}

// Register creates a wallet account with a hashed password. The account
// itself is initialized with zero balances.
func (s *Service) Register(ctx context.Context, wallet, password string) (*models.Account, error) {
	if wallet == "" {
		return nil, &errs.ValidationError{Reason: "wallet cannot be empty"}
	}
	if password == "" {
		return nil, &errs.ValidationError{Reason: "password cannot be empty"}
	}
	if len(wallet) > 64 {
		return nil, &errs.ValidationError{Reason: "wallet too long (max 64 characters)"}
	}
	if len(password) > 100 {
		return nil, &errs.ValidationError{Reason: "password too long (max 100 characters)"}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var acct *models.Account
	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		acct, err = s.db.GetOrCreateAccount(ctx, tx, wallet)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			"INSERT INTO account_credentials (wallet, password_hash) VALUES ($1, $2)",
			wallet, string(hashedPassword))
		if err != nil {
			return fmt.Errorf("failed to create credentials: %w", err)
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, &errs.ValidationError{Reason: "wallet already registered"}
		}
		return nil, err
	}
	return acct, nil
}

// Login verifies credentials and issues a JWT carrying the wallet id.
func (s *Service) Login(ctx context.Context, wallet, password string) (string, error) {
	var passwordHash string
	err := s.db.Pool.QueryRow(ctx,
		"SELECT password_hash FROM account_credentials WHERE wallet = $1",
		wallet).Scan(&passwordHash)
	if err != nil {
		return "", fmt.Errorf("failed to get credentials: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"wallet": wallet,
		"exp":    time.Now().Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// WalletFromToken extracts the authenticated wallet id from a JWT.
func (s *Service) WalletFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	wallet, ok := claims["wallet"].(string)
	if !ok || wallet == "" {
		return "", fmt.Errorf("invalid token claims")
	}
	return wallet, nil
}
