// Package logdb declares the external contract the core consumes from a
// local log-DB runtime: a block store, a log iterator, and
// open(address)/open(name) operations. Apart from the BoxoBlockstore
// block-store adapter, this package defines interfaces only — no runtime
// is implemented here; callers (tests included) supply a concrete Runtime.
package logdb

import (
	"context"

	cid "github.com/ipfs/go-cid"

	"github.com/ipfs/orbitdb-remote-bridge/identity"
)

// BlockStore is the log DB's local content-addressed block store (spec
// §6): get/put plus a full iterator, the minimal shape needed by the
// Block Extractor (reads) and Download Pipeline (writes).
type BlockStore interface {
	Get(ctx context.Context, c cid.Cid) ([]byte, error)
	Put(ctx context.Context, c cid.Cid, data []byte) error
	Has(ctx context.Context, c cid.Cid) (bool, error)
	// All iterates every block currently held locally. Used by the
	// Block Extractor's full-mode identity scan.
	All(ctx context.Context) (<-chan cid.Cid, error)
}

// LogEntryRef is one entry in a database's oplog, as yielded by
// Log.Values.
type LogEntryRef struct {
	CID cid.Cid
}

// Log is the append-only oplog attached to an open database handle.
type Log interface {
	// Values returns every entry currently known to the log.
	Values(ctx context.Context) ([]LogEntryRef, error)
	// Heads returns the entries not referenced by any other entry's
	// `next` list.
	Heads(ctx context.Context) ([]LogEntryRef, error)
}

// Database is an open log-DB handle.
type Database interface {
	Address() string
	Name() string
	Type() string
	Log() Log
	BlockStore() BlockStore
	// All returns the kind-dependent materialized view (event list,
	// key-value map, document set, or counter value) used to verify
	// round-trip scenarios and to drive the fallback reconstructor's
	// replay target.
	All(ctx context.Context) (interface{}, error)
	Close(ctx context.Context) error
}

// OpenOptions configures how a database is (re)opened or created.
type OpenOptions struct {
	// Create, when true, creates a new database of Kind under Name if
	// one does not already exist (used by the fallback reconstructor).
	Create bool
	Kind   string
	Name   string
	// Identity signs entries written to a newly created database. Only
	// meaningful when Create is set; a runtime reopening an existing
	// database by address derives identity from the database itself.
	Identity *identity.Identity
}

// Runtime is the log-DB process the core opens databases against (spec
// §6: "open(address_or_name, open_opts) -> database_handle").
type Runtime interface {
	// Open opens an existing database by address or by name. When
	// opts.Create is set and no database of that name exists, it creates
	// one of opts.Kind.
	Open(ctx context.Context, addressOrName string, opts OpenOptions) (Database, error)
	// BlockStore returns the runtime-wide local block store backing
	// every database.
	BlockStore() BlockStore
}
