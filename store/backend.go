package store

import (
	"github.com/fiatjaf/eventstore"
	"github.com/fiatjaf/eventstore/badger"
	"github.com/fiatjaf/eventstore/slicestore"
)

// OpenBackend picks the eventstore backend for the given database path. An
// empty path or the literal "memory" selects the in-memory slice store,
// which is what the tests use; anything else is treated as a badger
// directory.
func OpenBackend(dbPath string) eventstore.Store {
	if dbPath == "" || dbPath == "memory" {
		return &slicestore.SliceStore{}
	}
	return &badger.BadgerBackend{Path: dbPath}
}
