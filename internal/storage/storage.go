package storage

import (
	"context"
	"errors"
	"fmt"

	"events_auth/internal/models"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

var ErrNotFound = errors.New("user not found")

// Storage is the credential store behind the auth service. Lookups return
// ErrNotFound when no record matches.
type Storage interface {
	// GetCredentialsByEmail loads only what a login needs: id, names,
	// email, digest, image, settings, status and active flag.
	GetCredentialsByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
	// GetUserByRegistrationToken loads id and email of the token holder.
	GetUserByRegistrationToken(ctx context.Context, token string) (models.User, error)

	// SaveUser overwrites the stored record with user. A returned user with
	// an empty ID means nothing was written.
	SaveUser(ctx context.Context, user models.User) (models.User, error)

	Ping(ctx context.Context) error
	Close()
}

type Options struct {
	Driver          string
	MongoURI        string
	MongoDatabase   string
	UsersCollection string
	PostgresURL     string
}

// New connects the configured backend, checks it answers and prepares its
// schema (indexes or migrations).
func New(ctx context.Context, opts Options) (Storage, error) {
	const op = "storage.New"

	var (
		st  Storage
		err error
	)

	switch opts.Driver {
	case DriverMongo:
		var ms *MongoStorage
		ms, err = NewMongoStorage(ctx, opts.MongoURI, opts.MongoDatabase, opts.UsersCollection)
		if err == nil {
			st = ms
			err = ms.EnsureIndexes(ctx)
		}
	case DriverPostgres:
		var ps *PostgresStorage
		ps, err = NewPostgresStorage(ctx, opts.PostgresURL)
		if err == nil {
			st = ps
			err = ps.Migrate(ctx)
		}
	default:
		return nil, fmt.Errorf("%s: unknown driver %q", op, opts.Driver)
	}
	if err != nil {
		if st != nil {
			st.Close()
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return st, nil
}
