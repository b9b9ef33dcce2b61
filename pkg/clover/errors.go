package clover

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/lib/pq"
)

// Version is reported on every error raised by the client.
const Version = "1.0.0"

// Known request error codes.
const (
	CodeValueTooLong         = "P2000"
	CodeUniqueConstraint     = "P2002"
	CodeForeignKeyConstraint = "P2003"
	CodeInvalidValue         = "P2007"
	CodeNullConstraint       = "P2011"
	CodeRecordNotFound       = "P2025"
	CodeRawQueryFailed       = "P2010"
	CodePoolTimeout          = "P2024"
	CodeTransactionExpired   = "P2028"
	CodeWriteConflict        = "P2034"
	CodeAuthenticationFailed = "P1000"
	CodeDatabaseUnreachable  = "P1001"
	CodeDatabaseDoesNotExist = "P1003"
	CodeConnectionTimedOut   = "P1002"
	CodeInvalidDatasourceURL = "P1013"
	CodeClientNotInitialized = "P1017"
)

// KnownRequestError is a database failure with a stable code.
type KnownRequestError struct {
	Code          string
	Message       string
	Meta          map[string]any
	ClientVersion string
	cause         error
}

func (e *KnownRequestError) Error() string {
	return e.Message
}

func (e *KnownRequestError) Unwrap() error {
	return e.cause
}

// UnknownRequestError is a database failure without a known code.
type UnknownRequestError struct {
	Message       string
	ClientVersion string
	cause         error
}

func (e *UnknownRequestError) Error() string {
	return e.Message
}

func (e *UnknownRequestError) Unwrap() error {
	return e.cause
}

// ValidationError reports arguments that cannot be turned into a query.
type ValidationError struct {
	Message       string
	ClientVersion string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InitializationError is returned when the client cannot connect.
type InitializationError struct {
	Message       string
	ErrorCode     string
	ClientVersion string
	cause         error
}

func (e *InitializationError) Error() string {
	return e.Message
}

func (e *InitializationError) Unwrap() error {
	return e.cause
}

// PanicError wraps a panic recovered inside a transaction callback.
type PanicError struct {
	Message       string
	Value         any
	ClientVersion string
}

func (e *PanicError) Error() string {
	return e.Message
}

func knownError(code, message string, meta map[string]any, cause error) *KnownRequestError {
	if meta == nil {
		meta = map[string]any{}
	}
	return &KnownRequestError{Code: code, Message: message, Meta: meta, ClientVersion: Version, cause: cause}
}

func validationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), ClientVersion: Version}
}

func notFoundError(model, cause string) *KnownRequestError {
	return knownError(CodeRecordNotFound, fmt.Sprintf("No record was found for a %s. %s", lowerFirst(model), cause),
		map[string]any{"modelName": model, "cause": cause}, sql.ErrNoRows)
}

var keyDetailRegex = regexp.MustCompile(`^Key \(([^)]+)\)=`)

// mapError converts driver errors into the client error taxonomy.
// sql.ErrNoRows and already mapped errors pass through.
func mapError(model string, err error) error {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var (
		known   *KnownRequestError
		unknown *UnknownRequestError
		valid   *ValidationError
		panicE  *PanicError
	)
	if errors.As(err, &known) || errors.As(err, &unknown) || errors.As(err, &valid) || errors.As(err, &panicE) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		meta := map[string]any{"modelName": model}
		switch pqErr.Code {
		case "23505":
			meta["target"] = constraintTarget(pqErr)
			return knownError(CodeUniqueConstraint,
				fmt.Sprintf("Unique constraint failed on the fields: (%s)", strings.Join(constraintTarget(pqErr), ",")), meta, err)
		case "23503":
			meta["field_name"] = pqErr.Constraint
			return knownError(CodeForeignKeyConstraint,
				fmt.Sprintf("Foreign key constraint violated on the constraint: `%s`", pqErr.Constraint), meta, err)
		case "23502":
			meta["constraint"] = pqErr.Column
			return knownError(CodeNullConstraint,
				fmt.Sprintf("Null constraint violation on the fields: (`%s`)", pqErr.Column), meta, err)
		case "22001":
			meta["column_name"] = pqErr.Column
			return knownError(CodeValueTooLong, "The provided value for the column is too long for the column's type.", meta, err)
		case "22P02":
			return knownError(CodeInvalidValue, fmt.Sprintf("Data validation error `%s`", pqErr.Message), meta, err)
		case "40001", "40P01":
			return knownError(CodeWriteConflict,
				"Transaction failed due to a write conflict or a deadlock. Please retry your transaction", meta, err)
		}
		return &UnknownRequestError{Message: pqErr.Message, ClientVersion: Version, cause: err}
	}

	return &UnknownRequestError{Message: err.Error(), ClientVersion: Version, cause: err}
}

func constraintTarget(pqErr *pq.Error) []string {
	if m := keyDetailRegex.FindStringSubmatch(pqErr.Detail); len(m) == 2 {
		parts := strings.Split(m[1], ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	if pqErr.Constraint != "" {
		return []string{pqErr.Constraint}
	}
	return []string{}
}

// initError classifies a connect failure.
func initError(err error) *InitializationError {
	code := CodeDatabaseUnreachable
	message := fmt.Sprintf("Can't reach database server: %v", err)

	var pqErr *pq.Error
	var netErr net.Error
	switch {
	case errors.As(err, &pqErr) && pqErr.Code == "28P01":
		code = CodeAuthenticationFailed
		message = "Authentication failed against database server, the provided database credentials are not valid"
	case errors.As(err, &pqErr) && pqErr.Code == "3D000":
		code = CodeDatabaseDoesNotExist
		message = fmt.Sprintf("Database does not exist: %s", pqErr.Message)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		code = CodeConnectionTimedOut
		message = fmt.Sprintf("Timed out trying to connect to the database server: %v", err)
	}

	return &InitializationError{Message: message, ErrorCode: code, ClientVersion: Version, cause: err}
}

// IsNotFound reports whether err is a P2025 error.
func IsNotFound(err error) bool {
	return hasCode(err, CodeRecordNotFound)
}

// IsUniqueViolation reports whether err is a P2002 error.
func IsUniqueViolation(err error) bool {
	return hasCode(err, CodeUniqueConstraint)
}

// IsForeignKeyViolation reports whether err is a P2003 error.
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, CodeForeignKeyConstraint)
}

func hasCode(err error, code string) bool {
	var known *KnownRequestError
	return errors.As(err, &known) && known.Code == code
}

// ToHTTPError converts a client error into an HTTP error for the API layer.
func ToHTTPError(err error) error {
	if err == nil || httperror.IsHTTPError(err) {
		return err
	}

	var (
		known *KnownRequestError
		valid *ValidationError
	)
	switch {
	case errors.As(err, &valid):
		return httperror.NewHTTPError(http.StatusBadRequest, valid.Message)
	case errors.As(err, &known):
		switch known.Code {
		case CodeRecordNotFound:
			return httperror.NewHTTPError(http.StatusNotFound, known.Message)
		case CodeUniqueConstraint, CodeWriteConflict:
			return httperror.NewHTTPError(http.StatusConflict, known.Message)
		case CodeForeignKeyConstraint, CodeNullConstraint, CodeValueTooLong, CodeInvalidValue:
			return httperror.NewHTTPError(http.StatusBadRequest, known.Message)
		case CodePoolTimeout, CodeTransactionExpired:
			return httperror.NewHTTPError(http.StatusServiceUnavailable, known.Message)
		}
	}
	return httperror.WrapError(http.StatusInternalServerError, err)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
