package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/walletreel/walletreel/errors"
	"github.com/walletreel/walletreel/repository"
)

var (
	insertQuery = `
        INSERT INTO video_requests (` + repository.Columns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	getQuery = `
        SELECT ` + repository.Columns + `
        FROM video_requests WHERE id = ?
    `

	listQuery = `
        SELECT ` + repository.Columns + `
        FROM video_requests
        ORDER BY created_at DESC, id
        LIMIT ? OFFSET ?
    `

	listByOwnerQuery = `
        SELECT ` + repository.Columns + `
        FROM video_requests
        WHERE owner_address = ?
        ORDER BY created_at DESC, id
        LIMIT ? OFFSET ?
    `

	updateQuery = `
        UPDATE video_requests SET
            report_address = ?,
            prompt = ?,
            duration = ?,
            activity_type = ?,
            chain_id = ?,
            network = ?,
            balance = ?,
            transaction_count = ?,
            reports = ?,
            intro_text = ?,
            outro_text = ?,
            render_id = ?,
            video_url = ?,
            video_size = ?,
            error = ?,
            updated_at = ?
        WHERE id = ?
    `

	transitionQuery = `
        UPDATE video_requests SET status = ?, updated_at = ?
        WHERE id = ? AND status = ?
    `

	completeQuery = `
        UPDATE video_requests SET
            balance = ?,
            transaction_count = ?,
            reports = ?,
            intro_text = ?,
            outro_text = ?,
            error = '',
            status = ?,
            updated_at = ?
        WHERE id = ? AND status = ?
    `

	staleQuery = `
        SELECT ` + repository.Columns + `
        FROM video_requests
        WHERE status = ? AND updated_at < ?
        ORDER BY updated_at
    `
)

type PreparedStatements struct {
	insert      *sql.Stmt
	get         *sql.Stmt
	list        *sql.Stmt
	listByOwner *sql.Stmt
	update      *sql.Stmt
	transition  *sql.Stmt
	complete    *sql.Stmt
	stale       *sql.Stmt
}

func (stmts *PreparedStatements) Prepare(ctx context.Context, db *sql.DB) error {
	const op = "PreparedStatements.Prepare"

	targets := []struct {
		name  string
		dst   **sql.Stmt
		query string
	}{
		{"insert", &stmts.insert, insertQuery},
		{"get", &stmts.get, getQuery},
		{"list", &stmts.list, listQuery},
		{"listByOwner", &stmts.listByOwner, listByOwnerQuery},
		{"update", &stmts.update, updateQuery},
		{"transition", &stmts.transition, transitionQuery},
		{"complete", &stmts.complete, completeQuery},
		{"stale", &stmts.stale, staleQuery},
	}

	for _, t := range targets {
		stmt, err := db.PrepareContext(ctx, t.query)
		if err != nil {
			return errors.Internal(op, err, fmt.Sprintf("failed to prepare %s statement", t.name))
		}
		*t.dst = stmt
	}

	return nil
}

func (stmts *PreparedStatements) Close() error {
	var errs []error

	statements := [...]*sql.Stmt{
		stmts.insert,
		stmts.get,
		stmts.list,
		stmts.listByOwner,
		stmts.update,
		stmts.transition,
		stmts.complete,
		stmts.stale,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to close prepared statements: %v", errs)
	}

	return nil
}
