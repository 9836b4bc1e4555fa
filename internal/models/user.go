// Package models defines data structures persisted by the Glimmer core.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// User holds the prepaid credit balance for one account.
// Credits are mutated only through ledger operations and never go negative.
type User struct {
	ID        surrealmodels.RecordID `json:"id"`
	Name      string                 `json:"name"`
	Credits   int                    `json:"credits"`
	CreatedAt time.Time              `json:"created_at"`
}
