// Package sqlitestore is a storage.Gateway backed by a local SQLite file,
// for single-node deployments without NATS or MongoDB.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/launchmate/project"
	"github.com/c360studio/launchmate/storage"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	body       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id, created_at);

CREATE TABLE IF NOT EXISTS project_members (
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	identity   TEXT NOT NULL,
	PRIMARY KEY (project_id, identity)
);
CREATE INDEX IF NOT EXISTS idx_members_identity ON project_members(identity);

CREATE TABLE IF NOT EXISTS insights (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_insights_project ON insights(project_id, id);
`

var openDB = sql.Open

// Store implements storage.Gateway on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("sqlitestore: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: migration: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// dsn builds a file: URI for path with the connection pragmas. The path is
// escaped so '?' and '#' in it are not read as URI delimiters.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?" + q.Encode()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateProject implements storage.Gateway.
func (s *Store) CreateProject(ctx context.Context, p *project.Project) (*project.Project, error) {
	stored := p.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	stored.Normalize()

	err := s.inTx(ctx, "create project", func(tx *sql.Tx) error {
		body, err := encodeBody(stored)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO projects (id, owner_id, created_at, body) VALUES (?, ?, ?, ?)`,
			stored.ID, stored.OwnerID, stored.CreatedAt.UnixNano(), body); err != nil {
			return storage.Transport("insert project", err)
		}
		if err := replaceMembers(ctx, tx, stored.ID, stored.Collaborators); err != nil {
			return err
		}
		for _, in := range stored.Insights {
			if err := insertInsight(ctx, tx, stored.ID, in); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// PatchProject implements storage.Gateway.
func (s *Store) PatchProject(ctx context.Context, id string, patch project.Patch) error {
	return s.inTx(ctx, "patch project", func(tx *sql.Tx) error {
		p, err := loadBody(ctx, tx, id)
		if err != nil {
			return err
		}
		p.Apply(patch)
		p.LastEdited = s.now()

		body, err := encodeBody(p)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE projects SET body = ? WHERE id = ?`, body, id); err != nil {
			return storage.Transport("update project", err)
		}
		if patch.Collaborators != nil {
			return replaceMembers(ctx, tx, id, p.Collaborators)
		}
		return nil
	})
}

// DeleteProject implements storage.Gateway.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.inTx(ctx, "delete project", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return storage.Transport("delete project", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storage.NotFound("project %s", id)
		}
		for _, q := range []string{
			`DELETE FROM project_members WHERE project_id = ?`,
			`DELETE FROM insights WHERE project_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return storage.Transport("delete project", err)
			}
		}
		return nil
	})
}

// ListProjects implements storage.Gateway.
func (s *Store) ListProjects(ctx context.Context, identity string) ([]*project.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.body FROM projects p
		WHERE p.owner_id = ?
		   OR EXISTS (SELECT 1 FROM project_members m WHERE m.project_id = p.id AND m.identity = ?)
		ORDER BY p.created_at, p.id`, identity, identity)
	if err != nil {
		return nil, storage.Transport("list projects", err)
	}

	var out []*project.Project
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			rows.Close()
			return nil, storage.Transport("scan project", err)
		}
		p, err := decodeBody(body)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storage.Transport("list projects", err)
	}
	rows.Close()

	for _, p := range out {
		feed, err := s.queryInsights(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p.Insights = feed
	}
	if out == nil {
		out = []*project.Project{}
	}
	return out, nil
}

// AppendInsight implements storage.Gateway.
func (s *Store) AppendInsight(ctx context.Context, id, content string) (project.Insight, error) {
	in := project.Insight{Content: content, CreatedAt: s.now()}
	err := s.inTx(ctx, "append insight", func(tx *sql.Tx) error {
		if err := exists(ctx, tx, id); err != nil {
			return err
		}
		return insertInsight(ctx, tx, id, in)
	})
	if err != nil {
		return project.Insight{}, err
	}
	return in, nil
}

// ListInsights implements storage.Gateway.
func (s *Store) ListInsights(ctx context.Context, id string) ([]project.Insight, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("project %s", id)
	}
	if err != nil {
		return nil, storage.Transport("list insights", err)
	}
	return s.queryInsights(ctx, id)
}

func (s *Store) queryInsights(ctx context.Context, id string) ([]project.Insight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content, created_at FROM insights WHERE project_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, storage.Transport("list insights", err)
	}
	defer rows.Close()

	feed := []project.Insight{}
	for rows.Next() {
		var (
			in    project.Insight
			nanos int64
		)
		if err := rows.Scan(&in.Content, &nanos); err != nil {
			return nil, storage.Transport("scan insight", err)
		}
		in.CreatedAt = time.Unix(0, nanos)
		feed = append(feed, in)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Transport("list insights", err)
	}
	return feed, nil
}

func (s *Store) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Transport(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storage.Transport(op, err)
	}
	return nil
}

func exists(ctx context.Context, tx *sql.Tx, id string) error {
	var found int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NotFound("project %s", id)
	}
	if err != nil {
		return storage.Transport("lookup project", err)
	}
	return nil
}

func loadBody(ctx context.Context, tx *sql.Tx, id string) (*project.Project, error) {
	var body string
	err := tx.QueryRowContext(ctx, `SELECT body FROM projects WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("project %s", id)
	}
	if err != nil {
		return nil, storage.Transport("load project", err)
	}
	return decodeBody(body)
}

func replaceMembers(ctx context.Context, tx *sql.Tx, id string, members []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE project_id = ?`, id); err != nil {
		return storage.Transport("replace members", err)
	}
	for _, m := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO project_members (project_id, identity) VALUES (?, ?)`, id, m); err != nil {
			return storage.Transport("replace members", err)
		}
	}
	return nil
}

func insertInsight(ctx context.Context, tx *sql.Tx, id string, in project.Insight) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO insights (project_id, content, created_at) VALUES (?, ?, ?)`,
		id, in.Content, in.CreatedAt.UnixNano()); err != nil {
		return storage.Transport("insert insight", err)
	}
	return nil
}

// encodeBody stores everything but the insight feed, which has its own table.
func encodeBody(p *project.Project) (string, error) {
	c := *p
	c.Insights = nil
	data, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("marshal project: %w", err)
	}
	return string(data), nil
}

func decodeBody(body string) (*project.Project, error) {
	var p project.Project
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, storage.Malformed("decode project", err)
	}
	p.Normalize()
	return &p, nil
}
