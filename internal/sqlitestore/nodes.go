package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vk/workgraph/internal/workflow"
)

func insertNode(ctx context.Context, q queryer, n *workflow.Node, position int) error {
	model, err := toNodeModel(n, position)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO nodes (`+nodeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		model.ID, model.WorkflowID, model.Position, model.Kind, model.Name, model.X, model.Y,
		model.ComponentID, model.ComponentType, model.CustomValues, model.PreserveOutput, model.Links, model.GroupData,
	)
	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}
	return nil
}

// SaveNode implements store.Store.
func (db *DB) SaveNode(ctx context.Context, n *workflow.Node) (*workflow.Node, error) {
	out := n.Clone()

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows WHERE id = ?`, n.WorkflowID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return workflow.NotFound("workflow", n.WorkflowID)
		}
		if out.ID != "" {
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE id = ?`, out.ID).Scan(&exists); err != nil {
				return err
			}
			if exists > 0 {
				return workflow.InvalidArgument("node %q already exists", out.ID)
			}
		}
		workflow.AssignIDs(out, n.WorkflowID, uuid.NewString)

		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM nodes WHERE workflow_id = ?`, n.WorkflowID,
		).Scan(&next); err != nil {
			return err
		}
		return insertNode(ctx, tx, out, next)
	})
	if err != nil {
		if errors.Is(err, workflow.ErrInvalidArgument) {
			return nil, err
		}
		return nil, workflow.Persistence("save node", err)
	}
	return out, nil
}

// UpdateNode implements store.Store.
func (db *DB) UpdateNode(ctx context.Context, n *workflow.Node) (*workflow.Node, error) {
	out := n.Clone()

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var workflowID string
		var position int
		err := tx.QueryRowContext(ctx, `SELECT workflow_id, position FROM nodes WHERE id = ?`, n.ID).Scan(&workflowID, &position)
		if errors.Is(err, sql.ErrNoRows) {
			return workflow.NotFound("node", n.ID)
		}
		if err != nil {
			return err
		}
		workflow.AssignIDs(out, workflowID, uuid.NewString)

		model, err := toNodeModel(out, position)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE nodes SET kind = ?, name = ?, x = ?, y = ?, component_id = ?, component_type = ?,
				custom_values = ?, preserve_output = ?, links = ?, group_data = ?
			WHERE id = ?`,
			model.Kind, model.Name, model.X, model.Y, model.ComponentID, model.ComponentType,
			model.CustomValues, model.PreserveOutput, model.Links, model.GroupData,
			model.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update node: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, workflow.Persistence("update node", err)
	}
	return out, nil
}

// GetNodeByID implements store.Store.
func (db *DB) GetNodeByID(ctx context.Context, id string) (*workflow.Node, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	model, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, workflow.NotFound("node", id)
	}
	if err != nil {
		return nil, workflow.Persistence("get node", err)
	}
	n, err := model.toDomain()
	if err != nil {
		return nil, workflow.Persistence("get node", err)
	}
	return n, nil
}
