package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Diagnostic is the log-side view of an error. It never reaches clients.
type Diagnostic struct {
	Message   string
	Code      Code
	Status    int
	Retryable bool
	Chain     []string
	Postgres  *PostgresDetail
}

// PostgresDetail carries the server fields of a driver error, from either
// pgx or lib/pq.
type PostgresDetail struct {
	Code       string
	Message    string
	Detail     string
	Table      string
	Column     string
	Constraint string
}

// Diagnose unwraps err into a Diagnostic. Untyped errors are reported as
// internal.
func Diagnose(err error) Diagnostic {
	if err == nil {
		return Diagnostic{}
	}
	code := CodeInternal
	if typed := As(err); typed != nil {
		code = typed.Code()
	}
	meta := MetadataFor(code)
	d := Diagnostic{
		Message:   err.Error(),
		Code:      code,
		Status:    meta.HTTPStatus,
		Retryable: meta.Retryable,
		Postgres:  postgresDetail(err),
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields flattens the diagnostic for structured logging.
func (d Diagnostic) Fields() map[string]any {
	fields := map[string]any{
		"error":        d.Message,
		"error_code":   d.Code,
		"error_status": d.Status,
		"error_chain":  d.Chain,
	}
	if d.Retryable {
		fields["retryable"] = true
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.Code
		fields["pg_message"] = pg.Message
		if pg.Detail != "" {
			fields["pg_detail"] = pg.Detail
		}
		if pg.Table != "" {
			fields["pg_table"] = pg.Table
		}
		if pg.Column != "" {
			fields["pg_column"] = pg.Column
		}
		if pg.Constraint != "" {
			fields["pg_constraint"] = pg.Constraint
		}
	}
	return fields
}

func postgresDetail(err error) *PostgresDetail {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PostgresDetail{
			Code:       pgxErr.Code,
			Message:    pgxErr.Message,
			Detail:     pgxErr.Detail,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Constraint: pgxErr.ConstraintName,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PostgresDetail{
			Code:       string(pqErr.Code),
			Message:    pqErr.Message,
			Detail:     pqErr.Detail,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Constraint: pqErr.Constraint,
		}
	}
	return nil
}
