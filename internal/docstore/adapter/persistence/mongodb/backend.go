package mongodb

import (
	"context"
	stderrors "errors"
	"time"

	"carelog/internal/docstore/domain/model"
	"carelog/internal/docstore/domain/repository"
	"carelog/internal/docstore/query"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection holds every document of every collection path.
const DefaultCollection = "documents"

// MongoDB server codes for failed authentication and missing privileges.
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
)

// MongoDocument is the stored shape of one document.
type MongoDocument struct {
	ID         string                 `bson:"_id"`
	DocumentID string                 `bson:"docId"`
	Parent     string                 `bson:"parent"`
	Fields     map[string]interface{} `bson:"fields"`
	CreateTime time.Time              `bson:"createTime"`
	UpdateTime time.Time              `bson:"updateTime"`
}

// Backend stores all collections in a single MongoDB collection keyed by full document path.
type Backend struct {
	col        CollectionInterface
	log        logger.Logger
	now        func() time.Time
	disconnect func(ctx context.Context) error
}

var _ repository.Backend = (*Backend)(nil)

// NewBackend wraps an existing collection.
func NewBackend(col CollectionInterface, log logger.Logger) *Backend {
	return &Backend{
		col: col,
		log: logger.OrNop(log).WithComponent("mongo_backend"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Connect dials uri, ensures the indexes and returns a backend that disconnects on Close.
func Connect(ctx context.Context, uri, database, collection string, log logger.Logger) (*Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, classify("connect to mongodb", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, classify("ping mongodb", err)
	}
	b, err := Open(ctx, client.Database(database), collection, log)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	b.disconnect = client.Disconnect
	return b, nil
}

// Open uses a collection of an already connected database. Close leaves the client alone.
func Open(ctx context.Context, db *mongo.Database, collection string, log logger.Logger) (*Backend, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	col := db.Collection(collection)
	if err := EnsureIndexes(ctx, col); err != nil {
		return nil, classify("create indexes", err)
	}
	b := NewBackend(NewMongoCollectionAdapter(col), log)
	b.log.Infof("Using MongoDB database %s collection %s", db.Name(), collection)
	return b, nil
}

func documentKey(path model.CollectionPath, id string) string {
	return path.DocumentPath(id)
}

func byKey(path model.CollectionPath, id string) bson.D {
	return bson.D{{Key: "_id", Value: documentKey(path, id)}}
}

func (b *Backend) Insert(ctx context.Context, path model.CollectionPath, id string, fields model.Fields) error {
	now := b.now()
	doc := MongoDocument{
		ID:         documentKey(path, id),
		DocumentID: id,
		Parent:     path.String(),
		Fields:     fields,
		CreateTime: now,
		UpdateTime: now,
	}
	if doc.Fields == nil {
		doc.Fields = map[string]interface{}{}
	}
	if _, err := b.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.NewConflictError("document already exists").
				WithDetail("path", doc.ID).
				WithCause(err)
		}
		return classify("insert document", err)
	}
	return nil
}

func (b *Backend) Set(ctx context.Context, path model.CollectionPath, id string, fields model.Fields, merge bool) error {
	now := b.now()
	if !merge {
		doc := MongoDocument{
			ID:         documentKey(path, id),
			DocumentID: id,
			Parent:     path.String(),
			Fields:     fields,
			CreateTime: now,
			UpdateTime: now,
		}
		if doc.Fields == nil {
			doc.Fields = map[string]interface{}{}
		}
		_, err := b.col.ReplaceOne(ctx, byKey(path, id), doc, options.Replace().SetUpsert(true))
		return classify("replace document", err)
	}

	set := bson.D{
		{Key: "docId", Value: id},
		{Key: query.ParentKey, Value: path.String()},
		{Key: "updateTime", Value: now},
	}
	for _, name := range fields.Keys() {
		set = append(set, bson.E{Key: query.FieldPath(name), Value: fields[name]})
	}
	onInsert := bson.D{{Key: "createTime", Value: now}}
	if len(fields) == 0 {
		onInsert = append(onInsert, bson.E{Key: query.FieldsKey, Value: bson.D{}})
	}
	update := bson.D{{Key: "$set", Value: set}, {Key: "$setOnInsert", Value: onInsert}}
	_, err := b.col.UpdateOne(ctx, byKey(path, id), update, options.Update().SetUpsert(true))
	return classify("merge document", err)
}

func (b *Backend) Get(ctx context.Context, path model.CollectionPath, id string) (model.Fields, error) {
	var doc MongoDocument
	if err := b.col.FindOne(ctx, byKey(path, id)).Decode(&doc); err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.NewNotFoundError("document").WithDetail("path", documentKey(path, id))
		}
		return nil, classify("get document", err)
	}
	return normalizeFields(doc.Fields), nil
}

func (b *Backend) Update(ctx context.Context, path model.CollectionPath, id string, fields model.Fields) error {
	set := bson.D{{Key: "updateTime", Value: b.now()}}
	for _, name := range fields.Keys() {
		set = append(set, bson.E{Key: query.FieldPath(name), Value: fields[name]})
	}
	res, err := b.col.UpdateOne(ctx, byKey(path, id), bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return classify("update document", err)
	}
	if res.Matched() == 0 {
		return errors.NewNotFoundError("document").WithDetail("path", documentKey(path, id))
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, path model.CollectionPath, id string) error {
	_, err := b.col.DeleteOne(ctx, byKey(path, id))
	return classify("delete document", err)
}

func (b *Backend) Query(ctx context.Context, q query.NativeQuery) ([]model.Snapshot, error) {
	cur, err := b.col.Find(ctx, q.Filter, q.FindOptions())
	if err != nil {
		return nil, classify("query collection", err)
	}
	defer cur.Close(ctx)

	out := []model.Snapshot{}
	for cur.Next(ctx) {
		var doc MongoDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, classify("decode stored document", err)
		}
		out = append(out, model.Snapshot{ID: doc.DocumentID, Fields: normalizeFields(doc.Fields)})
	}
	if err := cur.Err(); err != nil {
		return nil, classify("iterate query results", err)
	}
	b.log.Debugf("Query on %s returned %d documents", q.Collection, len(out))
	return out, nil
}

// Close disconnects the client when the backend owns it.
func (b *Backend) Close(ctx context.Context) error {
	if b.disconnect == nil {
		return nil
	}
	return b.disconnect(ctx)
}

// classify wraps a driver error as a transport error; nil stays nil.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := errors.NewTransportError(op+" failed", err).WithComponent("mongodb")
	if isAuthFailure(err) {
		wrapped.WithCause(stderrors.Join(errors.ErrForbidden, err))
	}
	return wrapped
}

func isAuthFailure(err error) bool {
	var se mongo.ServerError
	if stderrors.As(err, &se) {
		return se.HasErrorCode(codeUnauthorized) || se.HasErrorCode(codeAuthenticationFailed)
	}
	return false
}
