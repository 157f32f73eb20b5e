package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tasksync/tasksync/internal/schema"
)

// Neo4jConfig locates the graph database.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	// Database is the target database; empty selects the server default.
	Database string
}

// Neo4jStore keeps tasks as (:Task) nodes. Timestamps are stored as
// schema.TimeLayout strings so Cypher string comparison is chronological.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	now      func() time.Time
}

var _ Store = (*Neo4jStore)(nil)

// OpenNeo4jStore connects, verifies connectivity and ensures the id
// uniqueness constraint exists.
func OpenNeo4jStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w: %w", schema.ErrStorage, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w: %w", cfg.URI, schema.ErrStorage, err)
	}

	s := &Neo4jStore{driver: driver, database: cfg.Database, now: time.Now}
	_, err = s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, "CREATE CONSTRAINT task_id IF NOT EXISTS FOR (t:Task) REQUIRE t.id IS UNIQUE", nil)
		return nil, err
	})
	if err != nil {
		_ = driver.Close(ctx)
		return nil, neo4jErr("create constraint", err)
	}
	return s, nil
}

// SetClock replaces the clock used to stamp creations and updates.
func (s *Neo4jStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Neo4jStore) List(ctx context.Context) ([]*schema.Task, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead, DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (t:Task) RETURN t ORDER BY t.createdAt ASC, t.id ASC", nil)
		if err != nil {
			return nil, err
		}
		tasks := []*schema.Task{}
		for res.Next(ctx) {
			task, err := recordTask(res.Record())
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
		return tasks, res.Err()
	})
	if err != nil {
		return nil, neo4jErr("list tasks", err)
	}
	return result.([]*schema.Task), nil
}

func (s *Neo4jStore) Create(ctx context.Context, req schema.NewTask) (*schema.Task, error) {
	task, err := req.Build(s.now())
	if err != nil {
		return nil, err
	}
	_, err = s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, "CREATE (t:Task) SET t = $props", map[string]any{"props": taskProps(task)})
		return nil, err
	})
	if err != nil {
		return nil, neo4jErr("create task", err)
	}
	return task, nil
}

func (s *Neo4jStore) Update(ctx context.Context, id string, patch schema.Patch) (*schema.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (t:Task {id: $id}) RETURN t", map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("task %s: %w", id, schema.ErrNotFound)
		}
		task, err := recordTask(res.Record())
		if err != nil {
			return nil, err
		}
		applyPatch(task, patch, s.now)
		_, err = tx.Run(ctx, "MATCH (t:Task {id: $id}) SET t = $props",
			map[string]any{"id": id, "props": taskProps(task)})
		return task, err
	})
	if err != nil {
		return nil, neo4jErr("update task "+id, err)
	}
	return result.(*schema.Task), nil
}

func (s *Neo4jStore) Delete(ctx context.Context, id string) (*schema.Task, error) {
	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (t:Task {id: $id}) WITH t, properties(t) AS p DETACH DELETE t RETURN p AS t",
			map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("task %s: %w", id, schema.ErrNotFound)
		}
		return recordTask(res.Record())
	})
	if err != nil {
		return nil, neo4jErr("delete task "+id, err)
	}
	return result.(*schema.Task), nil
}

// Reconcile resolves the whole batch in one write transaction.
func (s *Neo4jStore) Reconcile(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		resp := &SyncResponse{Updated: []*schema.Task{}}
		for _, incoming := range req.Tasks {
			task := incoming.Synced()
			res, err := tx.Run(ctx, `
				OPTIONAL MATCH (s:Task {id: $id})
				WITH s WHERE s IS NULL OR s.updatedAt < $props.updatedAt
				MERGE (t:Task {id: $id})
				SET t = $props
				RETURN t.id AS id`,
				map[string]any{"id": task.ID, "props": taskProps(task)})
			if err != nil {
				return nil, err
			}
			if res.Next(ctx) {
				resp.Updated = append(resp.Updated, task)
			}
			if err := res.Err(); err != nil {
				return nil, err
			}
		}
		for _, ts := range req.Deleted {
			res, err := tx.Run(ctx, `
				MATCH (t:Task {id: $id}) WHERE t.updatedAt < $deletedAt
				DETACH DELETE t
				RETURN $id AS id`,
				map[string]any{"id": ts.ID, "deletedAt": schema.FormatTime(ts.DeletedAt)})
			if err != nil {
				return nil, err
			}
			if res.Next(ctx) {
				resp.Removed = append(resp.Removed, ts.ID)
			}
			if err := res.Err(); err != nil {
				return nil, err
			}
		}
		return resp, nil
	})
	if err != nil {
		return nil, neo4jErr("reconcile batch", err)
	}
	return result.(*SyncResponse), nil
}

func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

func (s *Neo4jStore) write(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: s.database})
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work)
}

// neo4jErr wraps driver failures as storage errors, leaving domain errors
// raised inside a transaction function untouched.
func neo4jErr(op string, err error) error {
	if isDomainErr(err) {
		return err
	}
	return fmt.Errorf("failed to %s: %w: %w", op, schema.ErrStorage, err)
}

// taskProps renders t as node properties.
func taskProps(t *schema.Task) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"isCompleted": t.IsCompleted,
		"createdAt":   schema.FormatTime(t.CreatedAt),
		"updatedAt":   schema.FormatTime(t.UpdatedAt),
		"isSynced":    t.IsSynced,
	}
}

// recordTask reads column "t", either a node or a property map.
func recordTask(record *neo4j.Record) (*schema.Task, error) {
	value, ok := record.Get("t")
	if !ok {
		return nil, fmt.Errorf("record has no column t")
	}
	switch v := value.(type) {
	case neo4j.Node:
		return propsTask(v.Props)
	case map[string]any:
		return propsTask(v)
	default:
		return nil, fmt.Errorf("unexpected value %T in column t", value)
	}
}

// propsTask parses node properties written by taskProps.
func propsTask(props map[string]any) (*schema.Task, error) {
	var t schema.Task
	var err error
	t.ID, _ = props["id"].(string)
	t.Title, _ = props["title"].(string)
	t.Description, _ = props["description"].(string)
	t.IsCompleted, _ = props["isCompleted"].(bool)
	t.IsSynced, _ = props["isSynced"].(bool)

	createdAt, _ := props["createdAt"].(string)
	if t.CreatedAt, err = schema.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	updatedAt, _ := props["updatedAt"].(string)
	if t.UpdatedAt, err = schema.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	return &t, nil
}
