package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fund-session-engine/internal/models"
	"fund-session-engine/internal/store"

	"go.uber.org/zap"
)

func scanPortfolio(row rowScanner) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	var holdingsStr string
	if err := row.Scan(&portfolio.Id, &portfolio.UserId, &holdingsStr, &portfolio.CreatedAt, &portfolio.UpdatedAt); err != nil {
		return nil, err
	}

	holdings, err := decodeHoldings(holdingsStr)
	if err != nil {
		return nil, err
	}
	portfolio.Holdings = holdings
	return &portfolio, nil
}

func encodeHoldings(holdings models.Holdings) (string, error) {
	if holdings == nil {
		holdings = models.Holdings{}
	}
	data, err := json.Marshal(holdings)
	if err != nil {
		return "", fmt.Errorf("failed to encode holdings: %w", err)
	}
	return string(data), nil
}

func decodeHoldings(holdingsStr string) (models.Holdings, error) {
	holdings := models.Holdings{}
	if err := json.Unmarshal([]byte(holdingsStr), &holdings); err != nil {
		return nil, fmt.Errorf("failed to parse holdings '%s': %w", holdingsStr, err)
	}
	return holdings, nil
}

// CreatePortfolio adds an empty portfolio for a user. Several portfolios per
// user are allowed; reads and upserts use the most recent one.
func (s *Service) CreatePortfolio(ctx context.Context, userId int64) (int64, error) {
	var portfolioId int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, fmt.Sprintf("user %d", userId), queryUserExists, userId); err != nil {
			return err
		}

		now := s.clock()
		result, err := tx.ExecContext(ctx, queryInsertPortfolio, userId, "{}", now, now)
		if err != nil {
			return fmt.Errorf("unable to insert portfolio: %w", err)
		}
		portfolioId, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	zap.L().Info("Portfolio created", zap.Int64("portfolio_id", portfolioId), zap.Int64("user_id", userId))
	return portfolioId, nil
}

// UpsertHoldings replaces the user's latest holdings snapshot wholesale,
// creating a portfolio when the user has none. updated_at always advances.
func (s *Service) UpsertHoldings(ctx context.Context, userId int64, holdings models.Holdings) (*models.Portfolio, error) {
	if err := holdings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidFormat, err)
	}
	encoded, err := encodeHoldings(holdings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidFormat, err)
	}

	var portfolio *models.Portfolio
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRow(ctx, tx, fmt.Sprintf("user %d", userId), queryUserExists, userId); err != nil {
			return err
		}

		now := s.clock()
		current, err := scanPortfolio(tx.QueryRowContext(ctx, queryGetLatestPortfolio, userId))
		if errors.Is(err, sql.ErrNoRows) {
			result, err := tx.ExecContext(ctx, queryInsertPortfolio, userId, encoded, now, now)
			if err != nil {
				return fmt.Errorf("unable to insert portfolio: %w", err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return err
			}
			portfolio = &models.Portfolio{Id: id, UserId: userId, CreatedAt: now, UpdatedAt: now}
			return nil
		}
		if err != nil {
			return fmt.Errorf("unable to read portfolio: %w", err)
		}

		updatedAt := advance(current.UpdatedAt, now)
		if err := execOne(ctx, tx, fmt.Sprintf("portfolio %d", current.Id), queryUpdatePortfolioHoldings, encoded, updatedAt, current.Id); err != nil {
			return err
		}
		current.UpdatedAt = updatedAt
		portfolio = current
		return nil
	})
	if err != nil {
		zap.L().Warn("Failed to upsert holdings", zap.Int64("user_id", userId), zap.Error(err))
		return nil, err
	}

	portfolio.Holdings, err = decodeHoldings(encoded)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Holdings updated",
		zap.Int64("portfolio_id", portfolio.Id),
		zap.Int64("user_id", userId),
		zap.Int("instruments", len(holdings)))
	return portfolio, nil
}

// advance returns now, or one nanosecond past prev when the clock has not
// moved beyond it.
func advance(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Nanosecond).UTC()
}

// GetPortfolio returns the user's most recent portfolio.
func (s *Service) GetPortfolio(ctx context.Context, userId int64) (*models.Portfolio, error) {
	zap.L().Debug("Getting portfolio", zap.Int64("user_id", userId))

	portfolio, err := scanPortfolio(s.db.QueryRowContext(ctx, queryGetLatestPortfolio, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: portfolio for user %d", store.ErrNotFound, userId)
		}
		return nil, classifyError(fmt.Errorf("unable to query portfolio: %w", err))
	}
	return portfolio, nil
}

func (s *Service) ListPortfolios(ctx context.Context, userId int64) ([]models.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, queryListPortfolios, userId)
	if err != nil {
		return nil, classifyError(fmt.Errorf("unable to query portfolios: %w", err))
	}
	defer closeRows(rows)

	var portfolios []models.Portfolio
	for rows.Next() {
		portfolio, err := scanPortfolio(rows)
		if err != nil {
			return nil, classifyError(fmt.Errorf("unable to scan portfolio row: %w", err))
		}
		portfolios = append(portfolios, *portfolio)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		return nil, classifyError(fmt.Errorf("error iterating portfolio rows: %w", err))
	}
	return portfolios, nil
}
