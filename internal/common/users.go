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

package common

import (
	"context"
	"fmt"

	"fund-session-engine/internal/store"

	"go.uber.org/zap"
)

// UserInfo represents simplified user information for command-line utilities
type UserInfo struct {
	Id       int64
	Username string
	Email    string
	Verified bool
}

// LookupUser finds a user by email or username, whichever is given.
// Email wins when both are set.
func LookupUser(ctx context.Context, identities store.IdentityStore, email, username string, logger *zap.Logger) (*UserInfo, error) {
	switch {
	case email != "":
		logger.Info("Looking up user by email", zap.String("email", email))
		user, err := identities.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return &UserInfo{Id: user.Id, Username: user.Username, Email: user.Email, Verified: user.Verified}, nil
	case username != "":
		logger.Info("Looking up user by username", zap.String("username", username))
		user, err := identities.GetUserByUsername(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return &UserInfo{Id: user.Id, Username: user.Username, Email: user.Email, Verified: user.Verified}, nil
	default:
		return nil, fmt.Errorf("either email or username is required")
	}
}
