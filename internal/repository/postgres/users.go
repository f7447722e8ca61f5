package postgres

import (
	"context"
	"errors"
	"fmt"

	"auction-backend/internal/biddingerrors"
	model "auction-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, username, email, password_hash, phone_number, address, profile_image, role, created_at`

const (
	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"
)

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	var role string
	if err := row.Scan(&u.UserID, &u.Username, &u.Email, &u.PasswordHash, &u.PhoneNumber, &u.Address, &u.ProfileImage, &role, &u.CreatedAt); err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// userConflict maps a unique violation on users to the matching domain error.
func userConflict(err error) error {
	constraint, ok := uniqueViolation(err)
	switch {
	case !ok:
		return nil
	case constraint == emailConstraint:
		return biddingerrors.ErrEmailTaken
	default:
		return biddingerrors.ErrUsernameTaken
	}
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.UserID, user.Username, user.Email, user.PasswordHash, user.PhoneNumber, user.Address,
		user.ProfileImage, string(user.Role), user.CreatedAt)
	if conflict := userConflict(err); conflict != nil {
		return fmt.Errorf("create user %s: %w", user.Username, conflict)
	}
	if err != nil {
		return fmt.Errorf("create user %s: %w", user.Username, err)
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, column, value string) (model.User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("get user %s: %w", value, biddingerrors.ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", value, err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	return s.getUser(ctx, "id", userID)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *Store) UpdateUser(ctx context.Context, user model.User) error {
	tag, err := s.exec(ctx, `
UPDATE users SET username = $2, email = $3, password_hash = $4, phone_number = $5, address = $6,
	profile_image = $7, role = $8
WHERE id = $1`,
		user.UserID, user.Username, user.Email, user.PasswordHash, user.PhoneNumber, user.Address,
		user.ProfileImage, string(user.Role))
	if conflict := userConflict(err); conflict != nil {
		return fmt.Errorf("update user %s: %w", user.UserID, conflict)
	}
	if err != nil {
		return fmt.Errorf("update user %s: %w", user.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update user %s: %w", user.UserID, biddingerrors.ErrUserNotFound)
	}
	return nil
}
