package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"freqy/pkg/models"
)

// CreateUser inserts a new user and returns it with its assigned ID.
// The email is expected to be normalized by the caller.
func (db *Database) CreateUser(ctx context.Context, email, username, passwordHash string) (*models.User, error) {
	result, err := db.insertUserStmt.ExecContext(ctx, email, username, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		db.logger.WithError(err).WithField("email", email).Error("Failed to insert user")
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return db.GetUserByID(ctx, id)
}

// GetUserByEmail looks up a user by normalized email.
func (db *Database) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(db.getUserByEmailStmt.QueryRowContext(ctx, email))
}

// GetUserByID looks up a user by ID.
func (db *Database) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(db.getUserByIDStmt.QueryRowContext(ctx, id))
}

// EmailExists reports whether a user with the given email is registered.
func (db *Database) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", email).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdatePasswordHash overwrites the stored hash for a user.
func (db *Database) UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error {
	result, err := db.updatePasswordStmt.ExecContext(ctx, passwordHash, userID)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// GetAllUsers returns every user in registration order.
func (db *Database) GetAllUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, email, username, password_hash, created_at
		FROM users
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// expectAffected turns a zero-row update or delete into ErrNotFound.
func expectAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
