package mongodb

import (
	"context"
	"strings"
	"time"

	"carelog/internal/auth/domain/model"
	"carelog/internal/shared/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	credentialsCollection = "credentials"
	resetCodesCollection  = "reset_codes"
)

// MongoCredentialStore implements the CredentialStore interface using MongoDB
type MongoCredentialStore struct {
	credentials *mongo.Collection
	resetCodes  *mongo.Collection
}

// NewMongoCredentialStore creates the store and its indexes.
func NewMongoCredentialStore(ctx context.Context, db *mongo.Database) (*MongoCredentialStore, error) {
	s := &MongoCredentialStore{
		credentials: db.Collection(credentialsCollection),
		resetCodes:  db.Collection(resetCodesCollection),
	}

	_, err := s.credentials.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "email", Value: bson.D{{Key: "$gt", Value: ""}}}}),
		},
		{
			Keys: bson.D{{Key: "provider", Value: 1}, {Key: "subject", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "subject", Value: bson.D{{Key: "$exists", Value: true}}}}),
		},
	})
	if err != nil {
		return nil, errors.NewTransportError("create credential indexes", err).WithComponent("mongodb")
	}

	// expired codes are removed by the TTL monitor
	_, err = s.resetCodes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, errors.NewTransportError("create reset code index", err).WithComponent("mongodb")
	}
	return s, nil
}

func storeError(op string, err error) error {
	if err == mongo.ErrNoDocuments {
		return errors.NewNotFoundError("user")
	}
	if mongo.IsDuplicateKeyError(err) {
		return errors.NewConflictError("email or identity is already registered").WithCause(err)
	}
	return errors.NewTransportError(op, err).WithComponent("mongodb")
}

// CreateCredential inserts a new credential
func (s *MongoCredentialStore) CreateCredential(ctx context.Context, cred *model.Credential) error {
	if cred == nil || cred.ID == "" {
		return errors.NewValidationError("credential id is required")
	}
	now := time.Now().UTC()
	cred.Email = strings.ToLower(cred.Email)
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	if _, err := s.credentials.InsertOne(ctx, cred); err != nil {
		return storeError("insert credential", err)
	}
	return nil
}

func (s *MongoCredentialStore) findOne(ctx context.Context, filter bson.D) (*model.Credential, error) {
	var cred model.Credential
	if err := s.credentials.FindOne(ctx, filter).Decode(&cred); err != nil {
		return nil, storeError("find credential", err)
	}
	return &cred, nil
}

// GetByEmail retrieves a credential by email
func (s *MongoCredentialStore) GetByEmail(ctx context.Context, email string) (*model.Credential, error) {
	if email == "" {
		return nil, errors.NewValidationError("email cannot be empty")
	}
	return s.findOne(ctx, bson.D{{Key: "email", Value: strings.ToLower(email)}})
}

// GetByID retrieves a credential by user ID
func (s *MongoCredentialStore) GetByID(ctx context.Context, id string) (*model.Credential, error) {
	if id == "" {
		return nil, errors.NewValidationError("user ID cannot be empty")
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

// GetBySubject retrieves the credential linked to a federated identity
func (s *MongoCredentialStore) GetBySubject(ctx context.Context, provider, subject string) (*model.Credential, error) {
	return s.findOne(ctx, bson.D{{Key: "provider", Value: provider}, {Key: "subject", Value: subject}})
}

// UpdatePassword replaces the password hash of id
func (s *MongoCredentialStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.credentials.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: passwordHash},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return storeError("update password", err)
	}
	if res.MatchedCount == 0 {
		return errors.NewNotFoundError("user")
	}
	return nil
}

// SaveResetCode stores a one-time reset code
func (s *MongoCredentialStore) SaveResetCode(ctx context.Context, code model.ResetCode) error {
	if _, err := s.resetCodes.InsertOne(ctx, code); err != nil {
		return storeError("insert reset code", err)
	}
	return nil
}

// TakeResetCode atomically reads and removes a reset code
func (s *MongoCredentialStore) TakeResetCode(ctx context.Context, code string) (*model.ResetCode, error) {
	var rc model.ResetCode
	err := s.resetCodes.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: code}}).Decode(&rc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.NewNotFoundError("reset code")
	}
	if err != nil {
		return nil, storeError("take reset code", err)
	}
	return &rc, nil
}
