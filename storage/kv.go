package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/launchmate/project"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the KV bucket holding project records.
const DefaultBucket = "LAUNCHMATE_PROJECTS"

// maxCASAttempts bounds the read-modify-write loop when another writer
// updates the same project between our read and our write.
const maxCASAttempts = 3

// KVStore is a Gateway backed by a NATS JetStream KV bucket. Each project is
// one JSON value keyed by its id; insights live inside the record and are
// appended with compare-and-set on the entry revision.
type KVStore struct {
	kv  jetstream.KeyValue
	now func() time.Time
}

// KVOption configures a KVStore.
type KVOption func(*kvConfig)

type kvConfig struct {
	bucket  string
	history uint8
}

// WithBucket overrides the bucket name.
func WithBucket(name string) KVOption {
	return func(c *kvConfig) {
		if name != "" {
			c.bucket = name
		}
	}
}

// WithHistory sets how many revisions per key the bucket keeps.
func WithHistory(n uint8) KVOption {
	return func(c *kvConfig) {
		if n > 0 {
			c.history = n
		}
	}
}

// NewKVStore opens the project bucket, creating it if it doesn't exist.
func NewKVStore(ctx context.Context, js jetstream.JetStream, opts ...KVOption) (*KVStore, error) {
	cfg := kvConfig{bucket: DefaultBucket, history: 5}
	for _, opt := range opts {
		opt(&cfg)
	}

	kv, err := getOrCreateBucket(ctx, js, cfg)
	if err != nil {
		return nil, Transport("create projects bucket", err)
	}
	return &KVStore{kv: kv, now: time.Now}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, cfg kvConfig) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, cfg.bucket)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.bucket,
		Description: fmt.Sprintf("launchmate %s storage", strings.ToLower(cfg.bucket)),
		History:     cfg.history,
	})
}

// CreateProject implements Gateway.
func (s *KVStore) CreateProject(ctx context.Context, p *project.Project) (*project.Project, error) {
	stored := p.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	stored.Normalize()

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal project: %w", err)
	}
	if _, err := s.kv.Create(ctx, stored.ID, data); err != nil {
		return nil, Transport("store project", err)
	}
	return stored, nil
}

// PatchProject implements Gateway.
func (s *KVStore) PatchProject(ctx context.Context, id string, patch project.Patch) error {
	return s.update(ctx, "patch project", id, func(p *project.Project) {
		p.Apply(patch)
		p.LastEdited = s.now()
	})
}

// DeleteProject implements Gateway.
func (s *KVStore) DeleteProject(ctx context.Context, id string) error {
	if _, _, err := s.get(ctx, "delete project", id); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, id); err != nil {
		return Transport("delete project", err)
	}
	return nil
}

// ListProjects implements Gateway.
func (s *KVStore) ListProjects(ctx context.Context, identity string) ([]*project.Project, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []*project.Project{}, nil
		}
		return nil, Transport("list project keys", err)
	}

	projects := make([]*project.Project, 0, len(keys))
	for _, key := range keys {
		p, _, err := s.get(ctx, "list projects", key)
		if err != nil {
			// Deleted between Keys and Get.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if p.IsMember(identity) {
			projects = append(projects, p)
		}
	}
	SortByCreated(projects)
	return projects, nil
}

// AppendInsight implements Gateway.
func (s *KVStore) AppendInsight(ctx context.Context, id, content string) (project.Insight, error) {
	in := project.Insight{Content: content, CreatedAt: s.now()}
	err := s.update(ctx, "append insight", id, func(p *project.Project) {
		p.Insights = append(p.Insights, in)
	})
	if err != nil {
		return project.Insight{}, err
	}
	return in, nil
}

// ListInsights implements Gateway.
func (s *KVStore) ListInsights(ctx context.Context, id string) ([]project.Insight, error) {
	p, _, err := s.get(ctx, "list insights", id)
	if err != nil {
		return nil, err
	}
	return p.Insights, nil
}

func (s *KVStore) get(ctx context.Context, op, id string) (*project.Project, uint64, error) {
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, 0, NotFound("project %s", id)
		}
		return nil, 0, Transport(op, err)
	}

	var p project.Project
	if err := json.Unmarshal(entry.Value(), &p); err != nil {
		return nil, 0, Malformed(op, err)
	}
	p.Normalize()
	return &p, entry.Revision(), nil
}

// update runs a read-modify-write against the entry revision. A concurrent
// writer causes a re-read, up to maxCASAttempts.
func (s *KVStore) update(ctx context.Context, op, id string, mutate func(*project.Project)) error {
	var lastErr error
	for range maxCASAttempts {
		p, rev, err := s.get(ctx, op, id)
		if err != nil {
			return err
		}
		mutate(p)

		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal project: %w", err)
		}
		if _, err := s.kv.Update(ctx, id, data, rev); err != nil {
			if isWrongRevision(err) {
				lastErr = err
				continue
			}
			return Transport(op, err)
		}
		return nil
	}
	return Transport(op, fmt.Errorf("revision conflict after %d attempts: %w", maxCASAttempts, lastErr))
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "key not found")
}

func isWrongRevision(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}
