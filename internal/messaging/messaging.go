package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	DriverMongo = "mongo"
	DriverRedis = "redis"
	DriverNone  = "none"
)

const closeTimeout = 5 * time.Second

// Counter reports how many messages addressed to a user are still unread.
type Counter interface {
	CountUnread(ctx context.Context, userID string) (int, error)
	Close()
}

type Options struct {
	Driver             string
	MongoURI           string
	MongoDatabase      string
	MessagesCollection string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisKeyPrefix     string
}

// New builds the configured counter and checks that its backend answers.
// An empty driver yields a counter that always reports zero.
func New(ctx context.Context, opts Options) (Counter, error) {
	const op = "messaging.New"

	switch opts.Driver {
	case "", DriverNone:
		return NoopCounter{}, nil
	case DriverMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(opts.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return NewMongoCounter(client, client.Database(opts.MongoDatabase).Collection(opts.MessagesCollection)), nil
	case DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%s: redis ping: %w", op, err)
		}
		return NewRedisCounter(client, opts.RedisKeyPrefix), nil
	default:
		return nil, fmt.Errorf("%s: unknown driver %q", op, opts.Driver)
	}
}

type NoopCounter struct{}

func (NoopCounter) CountUnread(context.Context, string) (int, error) { return 0, nil }

func (NoopCounter) Close() {}

// MongoCounter counts documents in the messages collection.
type MongoCounter struct {
	client   *mongo.Client
	messages *mongo.Collection
}

func NewMongoCounter(client *mongo.Client, messages *mongo.Collection) *MongoCounter {
	return &MongoCounter{client: client, messages: messages}
}

func (m *MongoCounter) CountUnread(ctx context.Context, userID string) (int, error) {
	const op = "messaging.MongoCounter.CountUnread"

	n, err := m.messages.CountDocuments(ctx, unreadFilter(userID))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return int(n), nil
}

func (m *MongoCounter) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	_ = m.client.Disconnect(ctx)
}

// unreadFilter matches the receiver stored either as a plain string or as
// an ObjectID.
func unreadFilter(userID string) bson.D {
	receiver := any(userID)
	if oid, err := bson.ObjectIDFromHex(userID); err == nil {
		receiver = bson.D{{Key: "$in", Value: bson.A{userID, oid}}}
	}

	return bson.D{
		{Key: "receiver", Value: receiver},
		{Key: "read", Value: false},
	}
}

// RedisCounter reads a per-user counter kept by the chat service.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

func (r *RedisCounter) CountUnread(ctx context.Context, userID string) (int, error) {
	const op = "messaging.RedisCounter.CountUnread"

	n, err := r.client.Get(ctx, r.key(userID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if n < 0 {
		return 0, nil
	}

	return n, nil
}

func (r *RedisCounter) Close() {
	_ = r.client.Close()
}

func (r *RedisCounter) key(userID string) string {
	return r.prefix + userID
}
