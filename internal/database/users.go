/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"fund-session-engine/internal/models"
	"fund-session-engine/internal/store"

	"go.uber.org/zap"
)

const (
	MaxUsernameLength    = 16
	CredentialHashLength = 64
	birthdayLayout       = "2006-01-02"
)

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.Id, &user.Username, &user.Email, &user.Verified, &user.CredentialHash,
		&user.Birthday, &user.DevStatus, &user.TradeStatus, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func validateNewUser(user models.NewUser) error {
	if n := utf8.RuneCountInString(user.Username); n == 0 || n > MaxUsernameLength {
		return fmt.Errorf("%w: username must be 1-%d characters, got %d", store.ErrInvalidFormat, MaxUsernameLength, n)
	}
	if strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("%w: email cannot be empty", store.ErrInvalidFormat)
	}
	if n := utf8.RuneCountInString(user.CredentialHash); n != CredentialHashLength {
		return fmt.Errorf("%w: credential hash must be %d characters, got %d", store.ErrInvalidFormat, CredentialHashLength, n)
	}
	if user.Birthday.IsZero() {
		return fmt.Errorf("%w: birthday is required", store.ErrInvalidFormat)
	}
	return nil
}

func (s *Service) CreateUser(ctx context.Context, user models.NewUser) (int64, error) {
	if err := validateNewUser(user); err != nil {
		zap.L().Warn("Rejected user registration", zap.String("username", user.Username), zap.Error(err))
		return 0, err
	}

	zap.L().Info("Creating user", zap.String("username", user.Username), zap.String("email", user.Email))

	var userId int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, queryInsertUser,
			user.Username, user.Email, user.CredentialHash, user.Birthday.Format(birthdayLayout), s.clock())
		if err != nil {
			return fmt.Errorf("unable to insert user: %w", err)
		}
		userId, err = result.LastInsertId()
		return err
	})
	if err != nil {
		zap.L().Warn("Failed to insert user", zap.String("username", user.Username), zap.Error(err))
		return 0, err
	}

	zap.L().Info("User created successfully", zap.Int64("id", userId), zap.String("username", user.Username))
	return userId, nil
}

func (s *Service) GetUser(ctx context.Context, userId int64) (*models.User, error) {
	zap.L().Debug("Querying user by ID", zap.Int64("user_id", userId))
	return s.getUser(ctx, fmt.Sprintf("user %d", userId), queryGetUserById, userId)
}

func (s *Service) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	zap.L().Debug("Querying user by username", zap.String("username", username))
	return s.getUser(ctx, fmt.Sprintf("user %s", username), queryGetUserByUsername, username)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	zap.L().Debug("Querying user by email", zap.String("email", email))
	return s.getUser(ctx, fmt.Sprintf("user %s", email), queryGetUserByEmail, email)
}

func (s *Service) getUser(ctx context.Context, what, query string, arg any) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, what)
		}
		zap.L().Error("Failed to query user", zap.String("user", what), zap.Error(err))
		return nil, classifyError(fmt.Errorf("unable to query user: %w", err))
	}
	return user, nil
}

func (s *Service) SetVerified(ctx context.Context, userId int64, verified bool) error {
	return s.setUserFlag(ctx, userId, "verified", queryUpdateUserVerified, verified)
}

func (s *Service) SetDevStatus(ctx context.Context, userId int64, devStatus bool) error {
	return s.setUserFlag(ctx, userId, "dev_status", queryUpdateUserDevStatus, devStatus)
}

func (s *Service) SetTradeStatus(ctx context.Context, userId int64, tradeStatus bool) error {
	return s.setUserFlag(ctx, userId, "trade_status", queryUpdateUserTradeStatus, tradeStatus)
}

func (s *Service) setUserFlag(ctx context.Context, userId int64, flag, query string, value bool) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return execOne(ctx, tx, fmt.Sprintf("user %d", userId), query, value, userId)
	})
	if err != nil {
		return err
	}

	zap.L().Info("User flag updated", zap.Int64("user_id", userId), zap.String("flag", flag), zap.Bool("value", value))
	return nil
}

// DeleteUser permanently removes a user with their dev keys, wallets and
// portfolios. Dependents are removed first, all in one transaction.
func (s *Service) DeleteUser(ctx context.Context, userId int64) (store.UserCascade, error) {
	var cascade store.UserCascade

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, fmt.Sprintf("user %d", userId), queryUserExists, userId); err != nil {
			return err
		}

		var err error
		if cascade.DevKeys, err = execCount(ctx, tx, queryDeleteUserDevKeys, userId); err != nil {
			return fmt.Errorf("unable to delete dev keys: %w", err)
		}
		if cascade.Wallets, err = execCount(ctx, tx, queryDeleteUserWallets, userId); err != nil {
			return fmt.Errorf("unable to delete wallets: %w", err)
		}
		if cascade.Portfolios, err = execCount(ctx, tx, queryDeleteUserPortfolios, userId); err != nil {
			return fmt.Errorf("unable to delete portfolios: %w", err)
		}
		return execOne(ctx, tx, fmt.Sprintf("user %d", userId), queryDeleteUser, userId)
	})
	if err != nil {
		zap.L().Error("Failed to delete user", zap.Int64("user_id", userId), zap.Error(err))
		return store.UserCascade{}, err
	}

	zap.L().Info("User deleted",
		zap.Int64("user_id", userId),
		zap.Int64("dev_keys", cascade.DevKeys),
		zap.Int64("wallets", cascade.Wallets),
		zap.Int64("portfolios", cascade.Portfolios))
	return cascade, nil
}
