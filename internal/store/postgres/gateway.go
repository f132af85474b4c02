package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Gateway executes approved statements through the execute_readonly_query
// database function. The raw statement never reaches the session directly:
// the function runs it under a read-only role with its own row cap, and
// the gateway re-checks the cap client-side.
type Gateway struct {
	db          *sql.DB
	maxRows     int
	execTimeout time.Duration
}

func NewGateway(db *sql.DB, maxRows int, execTimeout time.Duration) *Gateway {
	if maxRows <= 0 {
		maxRows = 100
	}
	if execTimeout <= 0 {
		execTimeout = 10 * time.Second
	}
	return &Gateway{db: db, maxRows: maxRows, execTimeout: execTimeout}
}

func (g *Gateway) Execute(ctx context.Context, sqlText string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, g.execTimeout)
	defer cancel()

	tx, err := g.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin readonly tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	timeoutMillis := int(g.execTimeout / time.Millisecond)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeoutMillis)); err != nil {
		return nil, fmt.Errorf("set statement timeout: %w", err)
	}

	var payload []byte
	if err := tx.QueryRowContext(ctx, "SELECT execute_readonly_query($1, $2)", sqlText, g.maxRows).Scan(&payload); err != nil {
		return nil, fmt.Errorf("execute readonly query: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit readonly tx: %w", err)
	}

	return decodeResultRows(payload, g.maxRows)
}

// decodeResultRows unpacks the JSONB array returned by the database
// function. Rows must be flat objects of scalars; anything nested is
// rejected rather than silently flattened.
func decodeResultRows(payload []byte, maxRows int) ([]map[string]any, error) {
	if len(payload) == 0 {
		return []map[string]any{}, nil
	}

	var raw []map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode result rows: %w", err)
	}
	if len(raw) > maxRows {
		return nil, fmt.Errorf("result exceeds row cap (%d rows, max %d)", len(raw), maxRows)
	}

	for i, row := range raw {
		for column, value := range row {
			switch value.(type) {
			case map[string]any, []any:
				return nil, fmt.Errorf("row %d column %s holds a nested value", i, column)
			}
		}
	}
	return raw, nil
}
