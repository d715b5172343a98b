// Package classify decodes candidate blocks and classifies them into the
// role they play in a log database, builds the parent->child edge map, and
// identifies heads.
package classify

import (
	"context"

	cid "github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/ipfs/orbitdb-remote-bridge/blocks"
	"github.com/ipfs/orbitdb-remote-bridge/logdb"
)

var log = logging.Logger("orbitbridge/classify")

// Analysis is the output of the Block Analyzer.
type Analysis struct {
	Roots             []cid.Cid
	AccessControllers []cid.Cid
	LogEntries        map[cid.Cid]*blocks.LogEntry
	Identities        []cid.Cid
	Unknown           []cid.Cid
	// Parent maps a referenced child CID to the entry CID that
	// references it via `next`.
	Parent map[cid.Cid]cid.Cid
	// Heads are log entries not referenced by any other entry's `next`
	// list.
	Heads []cid.Cid
}

// Analyze decodes and classifies every CID in candidates by reading its
// bytes from bs.
func Analyze(ctx context.Context, bs logdb.BlockStore, candidates []cid.Cid) (*Analysis, error) {
	a := &Analysis{
		LogEntries: make(map[cid.Cid]*blocks.LogEntry),
		Parent:     make(map[cid.Cid]cid.Cid),
	}

	for _, c := range candidates {
		data, err := bs.Get(ctx, c)
		if err != nil {
			log.Warnw("candidate unreadable", "cid", c, "err", err)
			continue
		}

		src, _, err := blocks.Classify(c, data)
		if err != nil {
			log.Warnw("candidate undecodable", "cid", c, "err", err)
			a.Unknown = append(a.Unknown, c)
			continue
		}

		switch src {
		case blocks.SourceRoot:
			a.Roots = append(a.Roots, c)
		case blocks.SourceAccessController:
			a.AccessControllers = append(a.AccessControllers, c)
		case blocks.SourceIdentity:
			a.Identities = append(a.Identities, c)
		case blocks.SourceLogEntry:
			entry, err := blocks.DecodeLogEntry(data)
			if err != nil {
				log.Warnw("log entry undecodable", "cid", c, "err", err)
				a.Unknown = append(a.Unknown, c)
				continue
			}
			a.LogEntries[c] = entry
		default:
			a.Unknown = append(a.Unknown, c)
		}
	}

	for c, entry := range a.LogEntries {
		for _, nextStr := range entry.Next {
			nc, err := cid.Decode(nextStr)
			if err != nil {
				continue
			}
			a.Parent[nc] = c
		}
	}

	for c := range a.LogEntries {
		if _, referenced := a.Parent[c]; !referenced {
			a.Heads = append(a.Heads, c)
		}
	}

	return a, nil
}
