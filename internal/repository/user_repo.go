package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tageampi/vintohub/internal/models"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, username, role, created_at
		FROM users
		WHERE id = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, id).
		Scan(&user.ID, &user.Username, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, username string, role string) (*models.User, error) {
	query := `
		INSERT INTO users (username, role)
		VALUES ($1, $2)
		RETURNING id, username, role, created_at
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, username, role).
		Scan(&user.ID, &user.Username, &user.Role, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return &user, nil
}

// MemoryUserRepository is a directory of users, used when the
// message store is not backed by Postgres.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[int64]models.User
	now   func() time.Time
}

func NewMemoryUserRepository(names map[int64]string) *MemoryUserRepository {
	users := make(map[int64]models.User, len(names))
	for id, name := range names {
		users[id] = models.User{ID: id, Username: name, Role: "buyer"}
	}
	return &MemoryUserRepository{
		users: users,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryUserRepository) Put(user models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

// Create adds a user with the next free id. Usernames are unique
// case-insensitively.
func (r *MemoryUserRepository) Create(_ context.Context, username string, role string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next int64 = 1
	for id, user := range r.users {
		if strings.EqualFold(user.Username, username) {
			return nil, ErrUsernameTaken
		}
		if id >= next {
			next = id + 1
		}
	}

	user := models.User{ID: next, Username: username, Role: role, CreatedAt: r.now()}
	r.users[user.ID] = user
	return &user, nil
}
