package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"authd/internal/app/model/db"
	"authd/internal/app/model/domain"
)

// Sentinel errors for unique-constraint violations so concurrent inserts
// racing on email/phone surface as conflicts instead of raw driver errors.
var (
	ErrEmailExists = errors.New("email already exists")
	ErrPhoneExists = errors.New("phone already exists")
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmailAndResetCode(ctx context.Context, email, code string, now time.Time) (*domain.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	SetResetCode(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error
	ClearResetCode(ctx context.Context, userID uuid.UUID) error
}

type userRepository struct {
	db *bun.DB
}

func NewUserRepository(db *bun.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	dbUser := &db.User{
		ID:           user.ID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Phone:        user.Phone,
		DateOfBirth:  user.DateOfBirth,
		PasswordHash: user.PasswordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	_, err := r.db.NewInsert().Model(dbUser).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err, "email") {
			return ErrEmailExists
		}
		if isUniqueViolation(err, "phone") {
			return ErrPhoneExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = dbUser.CreatedAt
	user.UpdatedAt = dbUser.UpdatedAt

	return nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	dbUser := &db.User{}
	err := r.db.NewSelect().Model(dbUser).Where("email = ?", email).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return r.toDomainUser(dbUser), nil
}

func (r *userRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	dbUser := &db.User{}
	err := r.db.NewSelect().Model(dbUser).Where("phone = ?", phone).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by phone: %w", err)
	}

	return r.toDomainUser(dbUser), nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	dbUser := &db.User{}
	err := r.db.NewSelect().Model(dbUser).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return r.toDomainUser(dbUser), nil
}

// GetByEmailAndResetCode matches email, stored reset code and unexpired
// expiry in a single query, so callers cannot distinguish a wrong code
// from an expired one or a missing user.
func (r *userRepository) GetByEmailAndResetCode(ctx context.Context, email, code string, now time.Time) (*domain.User, error) {
	dbUser := &db.User{}
	err := r.db.NewSelect().
		Model(dbUser).
		Where("email = ?", email).
		Where("reset_code = ?", code).
		Where("reset_code_expires_at > ?", now).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by reset code: %w", err)
	}

	return r.toDomainUser(dbUser), nil
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	count, err := r.db.NewSelect().
		Model((*db.User)(nil)).
		Where("email = ?", email).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}

	return count > 0, nil
}

func (r *userRepository) PhoneExists(ctx context.Context, phone string) (bool, error) {
	count, err := r.db.NewSelect().
		Model((*db.User)(nil)).
		Where("phone = ?", phone).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check phone existence: %w", err)
	}

	return count > 0, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	now := time.Now()
	_, err := r.db.NewUpdate().
		Model((*db.User)(nil)).
		Set("password_hash = ?, updated_at = ?", passwordHash, now).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

func (r *userRepository) SetResetCode(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error {
	now := time.Now()
	_, err := r.db.NewUpdate().
		Model((*db.User)(nil)).
		Set("reset_code = ?, reset_code_expires_at = ?, updated_at = ?", code, expiresAt, now).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set reset code: %w", err)
	}

	return nil
}

func (r *userRepository) ClearResetCode(ctx context.Context, userID uuid.UUID) error {
	now := time.Now()
	_, err := r.db.NewUpdate().
		Model((*db.User)(nil)).
		Set("reset_code = NULL, reset_code_expires_at = NULL, updated_at = ?", now).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear reset code: %w", err)
	}

	return nil
}

func (r *userRepository) toDomainUser(dbUser *db.User) *domain.User {
	return &domain.User{
		ID:                 dbUser.ID,
		Email:              dbUser.Email,
		FirstName:          dbUser.FirstName,
		LastName:           dbUser.LastName,
		Phone:              dbUser.Phone,
		DateOfBirth:        dbUser.DateOfBirth,
		PasswordHash:       dbUser.PasswordHash,
		ResetCode:          dbUser.ResetCode,
		ResetCodeExpiresAt: dbUser.ResetCodeExpiresAt,
		CreatedAt:          dbUser.CreatedAt,
		UpdatedAt:          dbUser.UpdatedAt,
	}
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505) on a constraint containing the given column.
func isUniqueViolation(err error, column string) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Field('C') != "23505" {
		return false
	}
	return strings.Contains(pgErr.Field('n'), column)
}
