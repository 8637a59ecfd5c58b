// Package storage provides the persistence backends for the member
// collection: a local JSON file, a GitHub-hosted JSON blob, and a Postgres
// document row. All of them satisfy member.Backend.
package storage

import (
	"errors"
	"time"
)

// ErrVersionConflict is returned when a save is rejected because the stored
// content changed since it was read. The caller's change is lost and must be
// resubmitted after a fresh read; there is no automatic retry or merge.
var ErrVersionConflict = errors.New("version conflict: content changed since read")

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
