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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"

	"fund-session-engine/internal/common"
	"fund-session-engine/internal/config"
	"fund-session-engine/internal/database"
	"fund-session-engine/internal/keys"
	"fund-session-engine/internal/models"
	"fund-session-engine/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if n := len([]rune(username)); n > database.MaxUsernameLength {
		return fmt.Errorf("username must be at most %d characters, got %d", database.MaxUsernameLength, n)
	}
	return nil
}

func parseBirthday(value string) (time.Time, error) {
	birthday, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("birthday must be YYYY-MM-DD: %w", err)
	}
	if birthday.After(time.Now()) {
		return time.Time{}, fmt.Errorf("birthday cannot be in the future")
	}
	return birthday, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	// Parse command line flags
	usernameFlag := flag.String("username", "", "Username, at most 16 characters (required)")
	emailFlag := flag.String("email", "", "User's email address (required)")
	birthdayFlag := flag.String("birthday", "", "Birthday as YYYY-MM-DD (required)")
	secretFlag := flag.String("secret", "", "Credential secret (default: CREDENTIAL_SECRET)")
	devFlag := flag.Bool("dev", false, "Enable developer access and issue a dev key")
	flag.Parse()

	if *usernameFlag == "" || *emailFlag == "" || *birthdayFlag == "" {
		zap.L().Fatal("Flags are required: --username, --email and --birthday")
	}
	if err := validateUsername(*usernameFlag); err != nil {
		zap.L().Fatal("Invalid username", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}
	birthday, err := parseBirthday(*birthdayFlag)
	if err != nil {
		zap.L().Fatal("Invalid birthday", zap.Error(err))
	}

	secret := *secretFlag
	if secret == "" {
		secret = os.Getenv("CREDENTIAL_SECRET")
	}
	if secret == "" {
		zap.L().Fatal("A credential secret is required: --secret or CREDENTIAL_SECRET")
	}

	zap.L().Info("Starting user creation process",
		zap.String("username", *usernameFlag),
		zap.String("email", *emailFlag))

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	zap.L().Info("Initializing services")
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	engine := services.DbService

	// The salt is per user and only needed to reproduce the hash.
	salt := uuid.NewString()
	userId, err := engine.CreateUser(ctx, models.NewUser{
		Username:       *usernameFlag,
		Email:          *emailFlag,
		CredentialHash: keys.HashCredential(secret, salt),
		Birthday:       birthday,
	})
	switch {
	case errors.Is(err, store.ErrDuplicateUsername):
		zap.L().Fatal("Username already taken", zap.String("username", *usernameFlag))
	case errors.Is(err, store.ErrDuplicateEmail):
		zap.L().Fatal("User already exists with this email", zap.String("email", *emailFlag))
	case err != nil:
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	walletId, err := engine.ProvisionInternalWallet(ctx, userId)
	if err != nil {
		zap.L().Fatal("Failed to provision wallet", zap.Error(err))
	}
	wallet, err := engine.GetWallet(ctx, walletId)
	if err != nil {
		zap.L().Fatal("Failed to read wallet", zap.Error(err))
	}

	portfolioId, err := engine.CreatePortfolio(ctx, userId)
	if err != nil {
		zap.L().Fatal("Failed to create portfolio", zap.Error(err))
	}

	var devKey string
	if *devFlag {
		if err := engine.SetDevStatus(ctx, userId, true); err != nil {
			zap.L().Fatal("Failed to enable developer access", zap.Error(err))
		}
		if _, devKey, err = engine.IssueDevKey(ctx, userId); err != nil {
			zap.L().Fatal("Failed to issue dev key", zap.Error(err))
		}
	}

	fmt.Println()
	common.PrintHeader("USER CREATED", common.WideWidth)
	fmt.Printf("ID:         %d\n", userId)
	fmt.Printf("Username:   %s\n", *usernameFlag)
	fmt.Printf("Email:      %s\n", *emailFlag)
	fmt.Printf("Salt:       %s\n", salt)
	fmt.Printf("Wallet:     %d (%s)\n", walletId, common.Truncate(wallet.PublicKey, 32))
	fmt.Printf("Portfolio:  %d\n", portfolioId)
	if devKey != "" {
		fmt.Printf("Dev key:    %s\n", devKey)
		fmt.Println("Store the dev key now; it is not shown again.")
	}
	common.PrintSeparator("=", common.WideWidth)
	fmt.Println()

	zap.L().Info("User created successfully",
		zap.Int64("id", userId),
		zap.Int64("wallet_id", walletId),
		zap.Int64("portfolio_id", portfolioId),
		zap.Bool("dev", *devFlag))
}
