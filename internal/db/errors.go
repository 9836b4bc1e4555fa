package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrTurnInFlight indicates the conversation already has a message in
	// streaming status. At most one turn may stream per conversation.
	ErrTurnInFlight = errors.New("turn already in flight")

	// ErrTransactionConflict indicates a SurrealDB transaction conflict.
	// Callers should typically retry or skip the operation.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// turnInFlightMarker is thrown by the placeholder-insert transaction when a
// streaming message already exists for the conversation.
const turnInFlightMarker = "turn_in_flight"

// wrapQueryError inspects a SurrealDB error and wraps it with the appropriate
// sentinel if it matches a known pattern. Returns the original error otherwise.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, turnInFlightMarker) {
			return fmt.Errorf("%w: %s", ErrTurnInFlight, msg)
		}
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}

	return err
}
