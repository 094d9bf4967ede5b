// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/taibuivan/novira/internal/platform/apperr"
)

// Wrap classifies a database error into a meaningful [apperr.AppError],
// hiding driver details from the client. The resource name feeds the
// user-facing message ("Document not found").
//
// Callers may pass an already-wrapped error; classification runs through
// the chain, so `Wrap(fmt.Errorf("find row: %w", err), "Task")` keeps the
// query context on the Internal cause while still mapping pgx.ErrNoRows.
func Wrap(err error, resource string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(resource)
	}

	// 2. SQLSTATE-based mapping for constraint violations
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return apperr.Conflict(resource + " already exists")
		case pgerrcode.ForeignKeyViolation:
			return apperr.Unprocessable(resource + " references a missing row")
		}
	}

	// 3. Unknown query errors become Internal Server Errors
	return apperr.Internal(err)
}
