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

const (
	// Node queries
	queryInsertNode = `
		INSERT INTO nodes (name, role, uuid, status, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetNodeById = `
		SELECT id, name, role, uuid, status, state, created_at
		FROM nodes
		WHERE id = ?`

	queryGetNodeByUUID = `
		SELECT id, name, role, uuid, status, state, created_at
		FROM nodes
		WHERE uuid = ?`

	queryListNodes = `
		SELECT id, name, role, uuid, status, state, created_at
		FROM nodes
		ORDER BY id`

	queryUpdateNodeStatus = `
		UPDATE nodes SET status = ? WHERE id = ?`

	queryUpdateNodeState = `
		UPDATE nodes SET state = ? WHERE id = ?`

	queryNodeExists = `
		SELECT 1 FROM nodes WHERE id = ?`

	queryDeleteNodeAuthRequests = `
		DELETE FROM auth_requests
		WHERE node_id = ? OR connection_id IN (SELECT id FROM connections WHERE node_id = ?)`

	queryDeleteNodeConnections = `
		DELETE FROM connections WHERE node_id = ?`

	queryDeleteNodeLogs = `
		DELETE FROM logs WHERE node_id = ?`

	queryDeleteNode = `
		DELETE FROM nodes WHERE id = ?`

	// Connection queries
	queryInsertConnection = `
		INSERT INTO connections (node_id, address, opened_at, active)
		VALUES (?, ?, ?, 1)`

	queryGetConnectionById = `
		SELECT id, node_id, address, opened_at, closed_at, active
		FROM connections
		WHERE id = ?`

	// The closed timestamp never precedes the open timestamp, even if the
	// wall clock stepped backwards.
	queryCloseConnection = `
		UPDATE connections
		SET active = 0, closed_at = MAX(?, opened_at)
		WHERE id = ? AND active = 1`

	queryListActiveConnections = `
		SELECT id, node_id, address, opened_at, closed_at, active
		FROM connections
		WHERE node_id = ? AND active = 1
		ORDER BY opened_at, id`

	// Auth request queries
	queryGetConnectionSnapshot = `
		SELECT node_id, address FROM connections WHERE id = ?`

	queryInsertAuthRequest = `
		INSERT INTO auth_requests (connection_id, address, node_id, result, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetAuthRequestById = `
		SELECT id, connection_id, address, node_id, result, content, created_at
		FROM auth_requests
		WHERE id = ?`

	queryListAuthRequests = `
		SELECT id, connection_id, address, node_id, result, content, created_at
		FROM auth_requests
		WHERE connection_id = ?
		ORDER BY id`

	queryFailureRate = `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN result = 0 THEN 1 ELSE 0 END), 0)
		FROM auth_requests
		WHERE node_id = ?`

	// Log queries
	queryInsertLog = `
		INSERT INTO logs (node_id, level, message, content, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryListLogs = `
		SELECT id, node_id, level, message, content, created_at
		FROM logs
		WHERE node_id = ?`

	// User queries
	queryInsertUser = `
		INSERT INTO users (username, email, credential_hash, birthday, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryGetUserById = `
		SELECT id, username, email, verified, credential_hash, birthday, dev_status, trade_status, created_at
		FROM users
		WHERE id = ?`

	queryGetUserByUsername = `
		SELECT id, username, email, verified, credential_hash, birthday, dev_status, trade_status, created_at
		FROM users
		WHERE username = ?`

	queryGetUserByEmail = `
		SELECT id, username, email, verified, credential_hash, birthday, dev_status, trade_status, created_at
		FROM users
		WHERE email = ?`

	queryUserExists = `
		SELECT 1 FROM users WHERE id = ?`

	queryUpdateUserVerified = `
		UPDATE users SET verified = ? WHERE id = ?`

	queryUpdateUserDevStatus = `
		UPDATE users SET dev_status = ? WHERE id = ?`

	queryUpdateUserTradeStatus = `
		UPDATE users SET trade_status = ? WHERE id = ?`

	queryDeleteUserDevKeys = `
		DELETE FROM dev_keys WHERE user_id = ?`

	queryDeleteUserWallets = `
		DELETE FROM wallets WHERE user_id = ?`

	queryDeleteUserPortfolios = `
		DELETE FROM portfolios WHERE user_id = ?`

	queryDeleteUser = `
		DELETE FROM users WHERE id = ?`

	// Credential queries
	queryInsertDevKey = `
		INSERT INTO dev_keys (user_id, key_material, created_at, revoked)
		VALUES (?, ?, ?, 0)`

	queryGetDevKeyById = `
		SELECT id, user_id, key_material, revoked, created_at
		FROM dev_keys
		WHERE id = ?`

	queryListDevKeys = `
		SELECT id, user_id, key_material, revoked, created_at
		FROM dev_keys
		WHERE user_id = ?
		ORDER BY id`

	queryRevokeDevKey = `
		UPDATE dev_keys SET revoked = 1 WHERE id = ? AND revoked = 0`

	queryDevKeyExists = `
		SELECT 1 FROM dev_keys WHERE id = ?`

	queryInsertWallet = `
		INSERT INTO wallets (user_id, internal, public_key, private_key)
		VALUES (?, ?, ?, ?)`

	queryGetWalletById = `
		SELECT id, user_id, internal, public_key, private_key
		FROM wallets
		WHERE id = ?`

	queryListWallets = `
		SELECT id, user_id, internal, public_key, private_key
		FROM wallets
		WHERE user_id = ?
		ORDER BY id`

	// Portfolio queries
	queryInsertPortfolio = `
		INSERT INTO portfolios (user_id, holdings, created_at, updated_at)
		VALUES (?, ?, ?, ?)`

	queryGetLatestPortfolio = `
		SELECT id, user_id, holdings, created_at, updated_at
		FROM portfolios
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT 1`

	queryListPortfolios = `
		SELECT id, user_id, holdings, created_at, updated_at
		FROM portfolios
		WHERE user_id = ?
		ORDER BY id`

	queryUpdatePortfolioHoldings = `
		UPDATE portfolios SET holdings = ?, updated_at = ? WHERE id = ?`
)
