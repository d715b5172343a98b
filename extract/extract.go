// Package extract walks a log DB's local storage and selects exactly the
// blocks that reproduce a database's identity.
package extract

import (
	"context"

	cid "github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/ipfs/orbitdb-remote-bridge/blocks"
	"github.com/ipfs/orbitdb-remote-bridge/cidbridge"
	"github.com/ipfs/orbitdb-remote-bridge/logdb"
)

var log = logging.Logger("orbitbridge/extract")

// Mode selects how much of local storage is swept for extraction.
type Mode int

const (
	// ModeFull extracts the root, its access controller, every
	// reachable log entry, and every identity block discoverable in
	// local storage.
	ModeFull Mode = iota
	// ModeLogEntriesOnly extracts only log-entry blocks.
	ModeLogEntriesOnly
)

// Result is the Extraction Set.
type Result struct {
	Blocks  map[cid.Cid][]byte
	Sources map[cid.Cid]blocks.Source
	Root    cid.Cid
	// Warnings records non-fatal ExtractionPartial conditions.
	Warnings []string
}

// Extract walks db per mode and returns its Extraction Set.
func Extract(ctx context.Context, db logdb.Database, mode Mode) (*Result, error) {
	res := &Result{
		Blocks:  make(map[cid.Cid][]byte),
		Sources: make(map[cid.Cid]blocks.Source),
	}

	bs := db.BlockStore()

	entries, err := db.Log().Values(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		data, err := bs.Get(ctx, e.CID)
		if err != nil {
			res.Warnings = append(res.Warnings, "extraction-partial: log entry "+e.CID.String()+" unreadable: "+err.Error())
			log.Warnw("log entry unreadable", "cid", e.CID, "err", err)
			continue
		}
		record(res, e.CID, data, blocks.SourceLogEntry)
	}

	rootCID, err := cidbridge.ParseAddress(db.Address())
	if err != nil {
		return nil, err
	}
	res.Root = rootCID

	if mode == ModeLogEntriesOnly {
		return res, nil
	}

	rootData, err := bs.Get(ctx, rootCID)
	if err != nil {
		res.Warnings = append(res.Warnings, "extraction-partial: root block unreadable: "+err.Error())
		log.Warnw("root block unreadable", "cid", rootCID, "err", err)
		return res, nil
	}
	record(res, rootCID, rootData, blocks.SourceRoot)

	rootBlock, err := blocks.DecodeRoot(rootData)
	if err != nil {
		res.Warnings = append(res.Warnings, "extraction-partial: root block undecodable: "+err.Error())
		log.Warnw("root block undecodable", "cid", rootCID, "err", err)
		return res, nil
	}

	if acCID, ok := blocks.AccessControllerRef(rootBlock); ok {
		acData, err := bs.Get(ctx, acCID)
		if err != nil {
			res.Warnings = append(res.Warnings, "extraction-partial: access controller unreadable: "+err.Error())
			log.Warnw("access controller unreadable", "cid", acCID, "err", err)
		} else {
			record(res, acCID, acData, blocks.SourceAccessController)
		}
	}

	allCIDs, err := bs.All(ctx)
	if err != nil {
		return nil, err
	}
	for c := range allCIDs {
		if _, already := res.Sources[c]; already {
			continue
		}
		data, err := bs.Get(ctx, c)
		if err != nil {
			continue
		}
		src, _, err := blocks.Classify(c, data)
		if err != nil || src != blocks.SourceIdentity {
			continue
		}
		record(res, c, data, blocks.SourceIdentity)
	}

	return res, nil
}

// record stores a block under its first-assigned classification; a block
// already recorded is never re-classified.
func record(res *Result, c cid.Cid, data []byte, src blocks.Source) {
	if _, ok := res.Sources[c]; ok {
		return
	}
	res.Blocks[c] = data
	res.Sources[c] = src
}
