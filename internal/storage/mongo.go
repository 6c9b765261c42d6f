package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"events_auth/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const disconnectTimeout = 5 * time.Second

// userDocument mirrors the fields of the shared users collection this
// service reads or writes. Other profile fields stay untouched on save.
type userDocument struct {
	ID                   bson.ObjectID `bson:"_id,omitempty"`
	FirstName            string        `bson:"firstName"`
	LastName             string        `bson:"lastName"`
	Email                string        `bson:"email"`
	Password             string        `bson:"password,omitempty"`
	RegistrationToken    string        `bson:"registrationToken,omitempty"`
	Status               string        `bson:"status"`
	Active               bool          `bson:"active"`
	Image                string        `bson:"image,omitempty"`
	Settings             bson.M        `bson:"settings,omitempty"`
	CreationDate         time.Time     `bson:"creationDate,omitempty"`
	LastModificationDate time.Time     `bson:"lastModificationDate,omitempty"`
}

var (
	credentialsProjection = bson.D{
		{Key: "_id", Value: 1},
		{Key: "firstName", Value: 1},
		{Key: "lastName", Value: 1},
		{Key: "email", Value: 1},
		{Key: "password", Value: 1},
		{Key: "image", Value: 1},
		{Key: "settings", Value: 1},
		{Key: "status", Value: 1},
		{Key: "active", Value: 1},
	}
	tokenOwnerProjection = bson.D{
		{Key: "_id", Value: 1},
		{Key: "email", Value: 1},
	}
)

type MongoStorage struct {
	client *mongo.Client
	users  *mongo.Collection
}

func NewMongoStorage(ctx context.Context, uri, database, collection string) (*MongoStorage, error) {
	const op = "storage.NewMongoStorage"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &MongoStorage{
		client: client,
		users:  client.Database(database).Collection(collection),
	}, nil
}

func (m *MongoStorage) EnsureIndexes(ctx context.Context) error {
	const op = "storage.EnsureIndexes"

	_, err := m.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "registrationToken", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (m *MongoStorage) GetCredentialsByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.GetCredentialsByEmail"

	user, err := m.findOne(ctx, bson.D{{Key: "email", Value: email}}, credentialsProjection)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (m *MongoStorage) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.GetUserByEmail"

	user, err := m.findOne(ctx, bson.D{{Key: "email", Value: email}}, nil)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (m *MongoStorage) GetUserByID(ctx context.Context, id string) (models.User, error) {
	const op = "storage.GetUserByID"

	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	user, err := m.findOne(ctx, bson.D{{Key: "_id", Value: oid}}, nil)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (m *MongoStorage) GetUserByRegistrationToken(ctx context.Context, token string) (models.User, error) {
	const op = "storage.GetUserByRegistrationToken"

	user, err := m.findOne(ctx, bson.D{{Key: "registrationToken", Value: token}}, tokenOwnerProjection)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (m *MongoStorage) SaveUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "storage.SaveUser"

	oid, err := bson.ObjectIDFromHex(user.ID)
	if err != nil {
		return models.User{}, nil
	}

	now := time.Now().UTC()

	res, err := m.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, userUpdate(user, now))
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return models.User{}, nil
	}

	user.UpdatedAt = now
	return user, nil
}

func (m *MongoStorage) Ping(ctx context.Context) error {
	const op = "storage.MongoStorage.Ping"

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (m *MongoStorage) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	_ = m.client.Disconnect(ctx)
}

func (m *MongoStorage) findOne(ctx context.Context, filter bson.D, projection bson.D) (models.User, error) {
	opts := options.FindOne()
	if projection != nil {
		opts.SetProjection(projection)
	}

	var doc userDocument
	err := m.users.FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}

	return doc.toModel(), nil
}

func (d userDocument) toModel() models.User {
	return models.User{
		ID:                d.ID.Hex(),
		FirstName:         d.FirstName,
		LastName:          d.LastName,
		Email:             d.Email,
		Password:          d.Password,
		RegistrationToken: d.RegistrationToken,
		Status:            d.Status,
		Active:            d.Active,
		Image:             d.Image,
		Settings:          map[string]any(d.Settings),
		CreatedAt:         d.CreationDate,
		UpdatedAt:         d.LastModificationDate,
	}
}

// userUpdate builds the $set/$unset document for the fields this service
// owns. Empty optional fields are unset rather than stored as "".
func userUpdate(user models.User, now time.Time) bson.D {
	set := bson.D{
		{Key: "firstName", Value: user.FirstName},
		{Key: "lastName", Value: user.LastName},
		{Key: "email", Value: user.Email},
		{Key: "status", Value: user.Status},
		{Key: "active", Value: user.Active},
		{Key: "lastModificationDate", Value: now},
	}
	unset := bson.D{}

	optional := []struct {
		key   string
		value string
	}{
		{key: "password", value: user.Password},
		{key: "registrationToken", value: user.RegistrationToken},
		{key: "image", value: user.Image},
	}
	for _, f := range optional {
		if f.value == "" {
			unset = append(unset, bson.E{Key: f.key, Value: ""})
			continue
		}
		set = append(set, bson.E{Key: f.key, Value: f.value})
	}

	if user.Settings != nil {
		set = append(set, bson.E{Key: "settings", Value: bson.M(user.Settings)})
	}

	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}

	return update
}
