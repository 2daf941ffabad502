package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/vk/workgraph/internal/store"
	"github.com/vk/workgraph/internal/workflow"
)

// SaveQuery implements store.QueryStore.
func (db *DB) SaveQuery(ctx context.Context, q *store.Query) error {
	if q == nil || q.NodeID == "" {
		return workflow.InvalidArgument("query must name a node")
	}
	filters := q.Filters
	if filters == nil {
		filters = map[string]string{}
	}
	encoded, err := json.Marshal(filters)
	if err != nil {
		return workflow.Persistence("save query", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO queries (node_id, filters, row_offset, row_limit) VALUES (?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET filters = excluded.filters, row_offset = excluded.row_offset, row_limit = excluded.row_limit`,
		q.NodeID, string(encoded), q.Offset, q.Limit,
	)
	if err != nil {
		return workflow.Persistence("save query", err)
	}
	return nil
}

// GetQueryForNode implements store.QueryStore.
func (db *DB) GetQueryForNode(ctx context.Context, nodeID string) (*store.Query, error) {
	var (
		filters string
		q       = &store.Query{NodeID: nodeID}
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT filters, row_offset, row_limit FROM queries WHERE node_id = ?`, nodeID,
	).Scan(&filters, &q.Offset, &q.Limit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, workflow.Persistence("get query", err)
	}
	if err := json.Unmarshal([]byte(filters), &q.Filters); err != nil {
		return nil, workflow.Persistence("get query", err)
	}
	if len(q.Filters) == 0 {
		q.Filters = nil
	}
	return q, nil
}

// RemoveQueryForNode implements store.QueryStore.
func (db *DB) RemoveQueryForNode(ctx context.Context, nodeID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM queries WHERE node_id = ?`, nodeID); err != nil {
		return workflow.Persistence("remove query", err)
	}
	return nil
}
