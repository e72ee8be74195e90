package errors

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// DriverError is the database server's own account of a failed statement.
// MySQL reports no table, column or constraint, so those stay empty.
type DriverError struct {
	Driver     string `json:"driver"`
	Code       string `json:"code"`
	State      string `json:"state,omitempty"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

// ErrorDump flattens an error for server-side logs.
type ErrorDump struct {
	TopMessage string       `json:"top_message"`
	Code       Code         `json:"code,omitempty"`
	Chain      []string     `json:"chain,omitempty"`
	DB         *DriverError `json:"db,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), DB: driverError(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields renders the dump as log fields. Driver details are prefixed with
// db_ and omitted when empty.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_chain": d.Chain,
	}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if d.DB == nil {
		return fields
	}
	for k, v := range map[string]string{
		"db_driver":     d.DB.Driver,
		"db_code":       d.DB.Code,
		"db_state":      d.DB.State,
		"db_message":    d.DB.Message,
		"db_detail":     d.DB.Detail,
		"db_table":      d.DB.Table,
		"db_column":     d.DB.Column,
		"db_constraint": d.DB.Constraint,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

// driverError finds the first pgx, lib/pq or mysql error in the chain.
func driverError(err error) *DriverError {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &DriverError{
			Driver:     "postgres",
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
		return &DriverError{
			Driver:     "postgres",
			Code:       string(pqErr.Code),
			Message:    pqErr.Message,
			Detail:     pqErr.Detail,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Constraint: pqErr.Constraint,
		}
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		de := &DriverError{
			Driver:  "mysql",
			Code:    strconv.Itoa(int(myErr.Number)),
			Message: myErr.Message,
		}
		if myErr.SQLState != [5]byte{} {
			de.State = string(myErr.SQLState[:])
		}
		return de
	}
	return nil
}
