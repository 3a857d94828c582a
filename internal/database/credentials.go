package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode/utf8"

	"fund-session-engine/internal/models"
	"fund-session-engine/internal/store"

	"go.uber.org/zap"
)

// KeyMaterialLength is the fixed size of dev keys and wallet keys.
const KeyMaterialLength = 128

func validateKey(kind, key string) error {
	if n := utf8.RuneCountInString(key); n != KeyMaterialLength {
		return fmt.Errorf("%w: %s must be %d characters, got %d", store.ErrInvalidFormat, kind, KeyMaterialLength, n)
	}
	return nil
}

func scanDevKey(row rowScanner) (*models.DevKey, error) {
	var key models.DevKey
	if err := row.Scan(&key.Id, &key.UserId, &key.KeyMaterial, &key.Revoked, &key.CreatedAt); err != nil {
		return nil, err
	}
	return &key, nil
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := row.Scan(&wallet.Id, &wallet.UserId, &wallet.Internal, &wallet.PublicKey, &wallet.PrivateKey); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// IssueDevKey stores freshly generated key material for a user. Generation
// happens before the transaction starts.
func (s *Service) IssueDevKey(ctx context.Context, userId int64) (int64, string, error) {
	material, err := s.keys.DevKey()
	if err != nil {
		return 0, "", fmt.Errorf("unable to generate dev key: %w", err)
	}
	if err := validateKey("dev key", material); err != nil {
		return 0, "", err
	}

	var devKeyId int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, fmt.Sprintf("user %d", userId), queryUserExists, userId); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, queryInsertDevKey, userId, material, s.clock())
		if err != nil {
			return fmt.Errorf("unable to insert dev key: %w", err)
		}
		devKeyId, err = result.LastInsertId()
		return err
	})
	if err != nil {
		if isUniqueViolation(err, "dev_keys.key_material") {
			zap.L().Error("Generated dev key collides with an issued key", zap.Int64("user_id", userId))
		} else {
			zap.L().Warn("Failed to issue dev key", zap.Int64("user_id", userId), zap.Error(err))
		}
		return 0, "", err
	}

	zap.L().Info("Dev key issued", zap.Int64("dev_key_id", devKeyId), zap.Int64("user_id", userId))
	return devKeyId, material, nil
}

// RevokeDevKey flips revoked from 0 to 1. Revocation is one-way.
func (s *Service) RevokeDevKey(ctx context.Context, devKeyId int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := execCount(ctx, tx, queryRevokeDevKey, devKeyId)
		if err != nil {
			return fmt.Errorf("unable to revoke dev key: %w", err)
		}
		if n > 0 {
			return nil
		}
		if err := requireRow(ctx, tx, fmt.Sprintf("dev key %d", devKeyId), queryDevKeyExists, devKeyId); err != nil {
			return err
		}
		return fmt.Errorf("%w: dev key %d", store.ErrAlreadyRevoked, devKeyId)
	})
	if err != nil {
		zap.L().Warn("Failed to revoke dev key", zap.Int64("dev_key_id", devKeyId), zap.Error(err))
		return err
	}

	zap.L().Info("Dev key revoked", zap.Int64("dev_key_id", devKeyId))
	return nil
}

func (s *Service) GetDevKey(ctx context.Context, devKeyId int64) (*models.DevKey, error) {
	key, err := scanDevKey(s.db.QueryRowContext(ctx, queryGetDevKeyById, devKeyId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: dev key %d", store.ErrNotFound, devKeyId)
		}
		return nil, classifyError(fmt.Errorf("unable to query dev key: %w", err))
	}
	return key, nil
}

func (s *Service) ListDevKeys(ctx context.Context, userId int64) ([]models.DevKey, error) {
	rows, err := s.db.QueryContext(ctx, queryListDevKeys, userId)
	if err != nil {
		return nil, classifyError(fmt.Errorf("unable to query dev keys: %w", err))
	}
	defer closeRows(rows)

	var keys []models.DevKey
	for rows.Next() {
		key, err := scanDevKey(rows)
		if err != nil {
			return nil, classifyError(fmt.Errorf("unable to scan dev key row: %w", err))
		}
		keys = append(keys, *key)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(fmt.Errorf("error iterating dev key rows: %w", err))
	}
	return keys, nil
}

// ProvisionWallet stores a caller supplied key pair for a user.
func (s *Service) ProvisionWallet(ctx context.Context, wallet models.NewWallet) (int64, error) {
	if err := validateKey("public key", wallet.PublicKey); err != nil {
		return 0, err
	}
	if err := validateKey("private key", wallet.PrivateKey); err != nil {
		return 0, err
	}

	var walletId int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, fmt.Sprintf("user %d", wallet.UserId), queryUserExists, wallet.UserId); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, queryInsertWallet, wallet.UserId, wallet.Internal, wallet.PublicKey, wallet.PrivateKey)
		if err != nil {
			return fmt.Errorf("unable to insert wallet: %w", err)
		}
		walletId, err = result.LastInsertId()
		return err
	})
	if err != nil {
		zap.L().Warn("Failed to provision wallet", zap.Int64("user_id", wallet.UserId), zap.Error(err))
		return 0, err
	}

	zap.L().Info("Wallet provisioned",
		zap.Int64("wallet_id", walletId),
		zap.Int64("user_id", wallet.UserId),
		zap.Bool("internal", wallet.Internal))
	return walletId, nil
}

// ProvisionInternalWallet provisions a wallet whose key pair comes from the
// platform key generator.
func (s *Service) ProvisionInternalWallet(ctx context.Context, userId int64) (int64, error) {
	publicKey, privateKey, err := s.keys.WalletKeyPair()
	if err != nil {
		return 0, fmt.Errorf("unable to generate wallet key pair: %w", err)
	}

	return s.ProvisionWallet(ctx, models.NewWallet{
		UserId:     userId,
		Internal:   true,
		PublicKey:  publicKey,
		PrivateKey: privateKey,
	})
}

func (s *Service) GetWallet(ctx context.Context, walletId int64) (*models.Wallet, error) {
	wallet, err := scanWallet(s.db.QueryRowContext(ctx, queryGetWalletById, walletId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: wallet %d", store.ErrNotFound, walletId)
		}
		return nil, classifyError(fmt.Errorf("unable to query wallet: %w", err))
	}
	return wallet, nil
}

func (s *Service) ListWallets(ctx context.Context, userId int64) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, queryListWallets, userId)
	if err != nil {
		return nil, classifyError(fmt.Errorf("unable to query wallets: %w", err))
	}
	defer closeRows(rows)

	var wallets []models.Wallet
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, classifyError(fmt.Errorf("unable to scan wallet row: %w", err))
		}
		wallets = append(wallets, *wallet)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError(fmt.Errorf("error iterating wallet rows: %w", err))
	}
	return wallets, nil
}
