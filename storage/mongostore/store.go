// Package mongostore is a storage.Gateway backed by a MongoDB collection.
// Each project is one document; insights are an embedded array appended
// with $push.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/launchmate/project"
	"github.com/c360studio/launchmate/storage"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Defaults for database and collection names.
const (
	DefaultDatabase   = "launchmate"
	DefaultCollection = "projects"
)

// Store implements storage.Gateway on MongoDB.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// Config holds connection settings.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Connect dials MongoDB, verifies the connection and ensures indexes.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongostore: uri is required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, storage.Transport("connect to MongoDB", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, storage.Transport("ping MongoDB", err)
	}

	s := New(client, cfg.Database, cfg.Collection)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing client. Empty names fall back to the defaults.
func New(client *mongo.Client, database, collection string) *Store {
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{
		client: client,
		coll:   client.Database(database).Collection(collection),
		now:    time.Now,
	}
}

// EnsureIndexes creates the membership and ordering indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "collaborators", Value: 1}}},
	})
	if err != nil {
		return storage.Transport("create indexes", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CreateProject implements storage.Gateway.
func (s *Store) CreateProject(ctx context.Context, p *project.Project) (*project.Project, error) {
	doc := p.Clone()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	doc.Normalize()

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, storage.Transport("insert project", err)
	}
	return doc, nil
}

// PatchProject implements storage.Gateway. Milestones are set per phase key
// so phases absent from the patch are untouched.
func (s *Store) PatchProject(ctx context.Context, id string, patch project.Patch) error {
	set := setDocument(patch)
	set["last_edited"] = s.now()

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return storage.Transport("patch project", err)
	}
	if res.MatchedCount == 0 {
		return storage.NotFound("project %s", id)
	}
	return nil
}

// DeleteProject implements storage.Gateway.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storage.Transport("delete project", err)
	}
	if res.DeletedCount == 0 {
		return storage.NotFound("project %s", id)
	}
	return nil
}

// ListProjects implements storage.Gateway.
func (s *Store) ListProjects(ctx context.Context, identity string) ([]*project.Project, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"owner_id": identity},
		bson.M{"collaborators": identity},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, storage.Transport("list projects", err)
	}
	defer cur.Close(ctx)

	var docs []project.Project
	if err := cur.All(ctx, &docs); err != nil {
		return nil, readError("list projects", err)
	}

	out := make([]*project.Project, len(docs))
	for i := range docs {
		docs[i].Normalize()
		out[i] = &docs[i]
	}
	return out, nil
}

// AppendInsight implements storage.Gateway.
func (s *Store) AppendInsight(ctx context.Context, id, content string) (project.Insight, error) {
	in := project.Insight{Content: content, CreatedAt: s.now()}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$push": bson.M{"insights": in}})
	if err != nil {
		return project.Insight{}, storage.Transport("append insight", err)
	}
	if res.MatchedCount == 0 {
		return project.Insight{}, storage.NotFound("project %s", id)
	}
	return in, nil
}

// ListInsights implements storage.Gateway.
func (s *Store) ListInsights(ctx context.Context, id string) ([]project.Insight, error) {
	var doc struct {
		Insights []project.Insight `bson:"insights"`
	}
	opts := options.FindOne().SetProjection(bson.M{"insights": 1})
	err := s.coll.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.NotFound("project %s", id)
		}
		return nil, readError("list insights", err)
	}
	if doc.Insights == nil {
		return []project.Insight{}, nil
	}
	return doc.Insights, nil
}

// readError classifies a failure while reading results. Cursor batches are
// fetched lazily, so network and timeout errors surface here too.
func readError(op string, err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.Canceled) {
		return storage.Transport(op, err)
	}
	return storage.Malformed(op, err)
}

// setDocument builds the $set body for patch, normalizing values the same
// way Project.Apply does.
func setDocument(patch project.Patch) bson.M {
	var scratch project.Project
	scratch.Apply(patch)

	set := bson.M{}
	for _, field := range patch.Fields() {
		switch field {
		case "title":
			set["title"] = scratch.Title
		case "description":
			set["description"] = scratch.Description
		case "problem":
			set["problem"] = scratch.Problem
		case "target_audience":
			set["target_audience"] = scratch.TargetAudience
		case "tags":
			set["tags"] = scratch.Tags
		case "visibility":
			set["visibility"] = scratch.Visibility
		case "stage":
			set["stage"] = scratch.Stage
		case "collaborators":
			set["collaborators"] = scratch.Collaborators
		case "favorite":
			set["favorite"] = scratch.Favorite
		case "milestones":
			for phaseID, ms := range scratch.Milestones {
				set[fmt.Sprintf("milestones.%s", phaseID)] = ms
			}
		}
	}
	return set
}
