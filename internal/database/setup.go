package database

import (
	"database/sql"
	"fmt"

	"guildchat-backend/internal/models"
)

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func Setup(cfg *models.ConfigFile) (*sql.DB, error) {
	var db *sql.DB
	var err error

	if cfg.SelfContained {
		db, err = sql.Open("sqlite", "./database.db")
		if err != nil {
			return db, err
		}

		// there can be sqlite busy errors if this is not set to 1
		db.SetMaxOpenConns(1)

		err = setPragmaValues(db)
		if err != nil {
			return db, err
		}
	} else {
		db, err = sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
		if err != nil {
			return db, err
		}

		db.SetMaxOpenConns(10)
	}

	err = CreateTables(db)
	if err != nil {
		return db, err
	}

	return db, nil
}

// CreateTables creates the full schema. The uniqueness constraints and
// cascades here are part of the contract: concurrent writers rely on them
// as the backstop for check-then-write races.
func CreateTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			email VARCHAR(100) NOT NULL UNIQUE,
			username VARCHAR(100) NOT NULL UNIQUE,
			display_name VARCHAR(100) NOT NULL,
			bio TEXT,
			avatar TEXT,
			password BINARY(60) NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS servers (
			id BIGINT PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			name VARCHAR(100) NOT NULL,
			description TEXT,
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			invite_code VARCHAR(20) UNIQUE,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS server_members (
			server_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			nickname VARCHAR(100),
			role VARCHAR(20) NOT NULL DEFAULT 'member',
			joined_at TIMESTAMP NOT NULL,
			PRIMARY KEY (server_id, user_id),
			FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS server_roles (
			id BIGINT PRIMARY KEY,
			server_id BIGINT NOT NULL,
			name VARCHAR(100) NOT NULL,
			color VARCHAR(7) NOT NULL DEFAULT '#99AAB5',
			position INT NOT NULL DEFAULT 0,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			manage_channels BOOLEAN NOT NULL DEFAULT FALSE,
			manage_server BOOLEAN NOT NULL DEFAULT FALSE,
			manage_roles BOOLEAN NOT NULL DEFAULT FALSE,
			manage_messages BOOLEAN NOT NULL DEFAULT FALSE,
			kick_members BOOLEAN NOT NULL DEFAULT FALSE,
			ban_members BOOLEAN NOT NULL DEFAULT FALSE,
			create_invites BOOLEAN NOT NULL DEFAULT TRUE,
			UNIQUE (server_id, name),
			FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS member_roles (
			server_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			role_id BIGINT NOT NULL,
			PRIMARY KEY (server_id, user_id, role_id),
			FOREIGN KEY (server_id, user_id) REFERENCES server_members(server_id, user_id) ON DELETE CASCADE,
			FOREIGN KEY (role_id) REFERENCES server_roles(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS server_invites (
			id BIGINT PRIMARY KEY,
			server_id BIGINT NOT NULL,
			code VARCHAR(20) NOT NULL UNIQUE,
			created_by BIGINT NOT NULL,
			max_uses INT NOT NULL DEFAULT 0,
			uses INT NOT NULL DEFAULT 0,
			expires_at TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE,
			FOREIGN KEY (created_by) REFERENCES users(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS channels (
			id BIGINT PRIMARY KEY,
			server_id BIGINT NOT NULL,
			name VARCHAR(100) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS dm_channels (
			id BIGINT PRIMARY KEY,
			user_low BIGINT NOT NULL,
			user_high BIGINT NOT NULL,
			last_message_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (user_low, user_high),
			FOREIGN KEY (user_low) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (user_high) REFERENCES users(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS messages (
			id BIGINT PRIMARY KEY,
			channel_id BIGINT,
			dm_channel_id BIGINT,
			user_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			edited BOOLEAN NOT NULL DEFAULT FALSE,
			edited_at TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL,
			CHECK ((channel_id IS NULL) <> (dm_channel_id IS NULL)),
			FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
			FOREIGN KEY (dm_channel_id) REFERENCES dm_channels(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS message_reactions (
			message_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			emoji VARCHAR(32) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (message_id, user_id, emoji),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS friend_requests (
			id BIGINT PRIMARY KEY,
			sender_id BIGINT NOT NULL,
			receiver_id BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (sender_id, receiver_id),
			FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (receiver_id) REFERENCES users(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS friends (
			user_id BIGINT NOT NULL,
			friend_id BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, friend_id),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (friend_id) REFERENCES users(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS user_blocks (
			user_id BIGINT NOT NULL,
			blocked_id BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, blocked_id),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (blocked_id) REFERENCES users(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			type VARCHAR(20) NOT NULL,
			title VARCHAR(100) NOT NULL,
			content TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return err
		}
	}

	return nil
}
