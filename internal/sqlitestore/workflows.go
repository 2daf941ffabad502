package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vk/workgraph/internal/workflow"
)

// workflowColumns is the list of columns to select for workflow queries.
const workflowColumns = `id, name, description, status, visibility, owner, tags, active, created_at`

// nodeColumns is the list of columns to select for node queries.
const nodeColumns = `id, workflow_id, position, kind, name, x, y, component_id, component_type,
	custom_values, preserve_output, links, group_data`

type scanner interface{ Scan(...any) error }

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanWorkflow(s scanner) (*workflowModel, error) {
	var m workflowModel
	err := s.Scan(&m.ID, &m.Name, &m.Description, &m.Status, &m.Visibility, &m.Owner, &m.Tags, &m.Active, &m.CreatedAt)
	return &m, err
}

func scanNode(s scanner) (*nodeModel, error) {
	var m nodeModel
	err := s.Scan(
		&m.ID, &m.WorkflowID, &m.Position, &m.Kind, &m.Name, &m.X, &m.Y, &m.ComponentID, &m.ComponentType,
		&m.CustomValues, &m.PreserveOutput, &m.Links, &m.GroupData,
	)
	return &m, err
}

// GetWorkflow implements store.Store.
func (db *DB) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	model, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workflow.NotFound("workflow", id)
	}
	if err != nil {
		return nil, workflow.Persistence("get workflow", err)
	}
	wf, err := model.toDomain()
	if err != nil {
		return nil, workflow.Persistence("get workflow", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE workflow_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, workflow.Persistence("get workflow nodes", err)
	}
	defer rows.Close()

	for rows.Next() {
		nm, err := scanNode(rows)
		if err != nil {
			return nil, workflow.Persistence("get workflow nodes", err)
		}
		n, err := nm.toDomain()
		if err != nil {
			return nil, workflow.Persistence("get workflow nodes", err)
		}
		wf.Nodes = append(wf.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.Persistence("get workflow nodes", err)
	}
	return wf, nil
}

// SaveWorkflow implements store.Store.
func (db *DB) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error) {
	out := wf.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	model, err := toWorkflowModel(out)
	if err != nil {
		return nil, workflow.Persistence("save workflow", err)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows WHERE id = ?`, out.ID).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			return workflow.InvalidArgument("workflow %q already exists", out.ID)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO workflows (id, name, description, status, visibility, owner, tags, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			model.ID, model.Name, model.Description, model.Status, model.Visibility, model.Owner,
			model.Tags, model.Active, model.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert workflow: %w", err)
		}
		for i, n := range out.Nodes {
			workflow.AssignIDs(n, out.ID, uuid.NewString)
			if err := insertNode(ctx, tx, n, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, workflow.ErrInvalidArgument) {
			return nil, err
		}
		return nil, workflow.Persistence("save workflow", err)
	}
	return out, nil
}

// UpdateWorkflow implements store.Store.
func (db *DB) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	model, err := toWorkflowModel(wf)
	if err != nil {
		return workflow.Persistence("update workflow", err)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE workflows SET name = ?, description = ?, status = ?, visibility = ?, owner = ?, tags = ?, active = ?
			WHERE id = ?`,
			model.Name, model.Description, model.Status, model.Visibility, model.Owner, model.Tags, model.Active,
			model.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update workflow: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return err
		} else if affected == 0 {
			return workflow.NotFound("workflow", wf.ID)
		}

		keep := make(map[string]int, len(wf.Nodes))
		for i, n := range wf.Nodes {
			var owner string
			err := tx.QueryRowContext(ctx, `SELECT workflow_id FROM nodes WHERE id = ?`, n.ID).Scan(&owner)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != wf.ID) {
				return workflow.NotFound("node", n.ID)
			}
			if err != nil {
				return err
			}
			keep[n.ID] = i
		}

		rows, err := tx.QueryContext(ctx, `SELECT id FROM nodes WHERE workflow_id = ?`, wf.ID)
		if err != nil {
			return err
		}
		var current []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			current = append(current, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range current {
			pos, ok := keep[id]
			if !ok {
				if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
					return fmt.Errorf("failed to detach node: %w", err)
				}
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE nodes SET position = ? WHERE id = ?`, pos, id); err != nil {
				return fmt.Errorf("failed to reorder node: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return workflow.Persistence("update workflow", err)
	}
	return nil
}

// ListWorkflows implements store.Store.
func (db *DB) ListWorkflows(ctx context.Context, includeInactive bool) ([]*workflow.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows`
	if !includeInactive {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY seq`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, workflow.Persistence("list workflows", err)
	}
	defer rows.Close()

	var out []*workflow.Workflow
	for rows.Next() {
		model, err := scanWorkflow(rows)
		if err != nil {
			return nil, workflow.Persistence("list workflows", err)
		}
		wf, err := model.toDomain()
		if err != nil {
			return nil, workflow.Persistence("list workflows", err)
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, workflow.Persistence("list workflows", err)
	}
	return out, nil
}

// inTx runs fn inside a transaction, rolling back when it fails.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
