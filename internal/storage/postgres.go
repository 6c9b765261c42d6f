package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"events_auth/internal/models"
	"events_auth/internal/storage/migrations"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const usersTable = "users"

const (
	userColumns = `id::text, first_name, last_name, email, COALESCE(password, ''),
	COALESCE(registration_token, ''), status, active, COALESCE(image, ''), settings,
	created_at, COALESCE(updated_at, created_at)`
	credentialColumns = `id::text, first_name, last_name, email, COALESCE(password, ''),
	COALESCE(image, ''), settings, status, active`
)

// pgxPool is the part of *pgxpool.Pool the store uses; pgxmock satisfies it.
type pgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type PostgresStorage struct {
	db   pgxPool
	pool *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, dbURL string) (*PostgresStorage, error) {
	const op = "storage.NewPostgresStorage"

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &PostgresStorage{
		db:   pool,
		pool: pool,
	}, nil
}

func newPostgresStorageWithPool(db pgxPool) *PostgresStorage {
	return &PostgresStorage{db: db}
}

var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded goose migrations.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	const op = "storage.Migrate"

	if p.pool == nil {
		return fmt.Errorf("%s: no connection pool", op)
	}

	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *PostgresStorage) GetCredentialsByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.GetCredentialsByEmail"

	var user models.User
	query := fmt.Sprintf("SELECT %s FROM %s WHERE email=$1", credentialColumns, usersTable)

	err := p.db.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Password,
		&user.Image,
		&user.Settings,
		&user.Status,
		&user.Active,
	)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, notFound(err))
	}

	return user, nil
}

func (p *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.GetUserByEmail"

	query := fmt.Sprintf("SELECT %s FROM %s WHERE email=$1", userColumns, usersTable)

	user, err := scanUser(p.db.QueryRow(ctx, query, email))
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, notFound(err))
	}

	return user, nil
}

func (p *PostgresStorage) GetUserByID(ctx context.Context, id string) (models.User, error) {
	const op = "storage.GetUserByID"

	userID, err := uuid.FromString(id)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id=$1", userColumns, usersTable)

	user, err := scanUser(p.db.QueryRow(ctx, query, userID.String()))
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, notFound(err))
	}

	return user, nil
}

func (p *PostgresStorage) GetUserByRegistrationToken(ctx context.Context, token string) (models.User, error) {
	const op = "storage.GetUserByRegistrationToken"

	var user models.User
	query := fmt.Sprintf("SELECT id::text, email FROM %s WHERE registration_token=$1 LIMIT 1", usersTable)

	err := p.db.QueryRow(ctx, query, token).Scan(&user.ID, &user.Email)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, notFound(err))
	}

	return user, nil
}

func (p *PostgresStorage) SaveUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "storage.SaveUser"

	userID, err := uuid.FromString(user.ID)
	if err != nil {
		return models.User{}, nil
	}

	settings := user.Settings
	if settings == nil {
		settings = map[string]any{}
	}

	query := fmt.Sprintf(`UPDATE %s
	SET first_name=$1, last_name=$2, email=$3, password=NULLIF($4, ''),
	    registration_token=NULLIF($5, ''), status=$6, active=$7, image=NULLIF($8, ''),
	    settings=$9, updated_at=now()
	WHERE id=$10
	RETURNING id::text, updated_at`, usersTable)

	saved := user
	err = p.db.QueryRow(ctx, query,
		user.FirstName,
		user.LastName,
		user.Email,
		user.Password,
		user.RegistrationToken,
		user.Status,
		user.Active,
		user.Image,
		settings,
		userID.String(),
	).Scan(&saved.ID, &saved.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, nil
	}
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return saved, nil
}

func (p *PostgresStorage) Ping(ctx context.Context) error {
	const op = "storage.PostgresStorage.Ping"

	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *PostgresStorage) Close() {
	p.db.Close()
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User

	err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Password,
		&user.RegistrationToken,
		&user.Status,
		&user.Active,
		&user.Image,
		&user.Settings,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
