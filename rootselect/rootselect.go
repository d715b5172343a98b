// Package rootselect chooses the correct database root among several
// candidates by matching log-entry database-ID references.
package rootselect

import (
	cid "github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/ipfs/orbitdb-remote-bridge/cidbridge"
	"github.com/ipfs/orbitdb-remote-bridge/classify"
)

var log = logging.Logger("orbitbridge/rootselect")

// Select picks the root candidate most referenced by the analyzed log
// entries' `id` field (the full database address). Returns (cid.Undef,
// false) when candidates is empty — the caller must then fall back to
// reconstruction.
func Select(a *classify.Analysis, scheme string) (cid.Cid, bool) {
	if len(a.Roots) == 0 {
		return cid.Undef, false
	}
	if len(a.Roots) == 1 {
		return a.Roots[0], true
	}

	referenced := make(map[string]bool)
	for _, entry := range a.LogEntries {
		referenced[entry.ID] = true
	}

	best := a.Roots[0]
	bestScore := -1
	for _, r := range a.Roots {
		addr, err := cidbridge.ComposeAddress(scheme, r)
		if err != nil {
			continue
		}
		score := 0
		if referenced[addr] {
			score = 1
		}
		if score > bestScore {
			bestScore = score
			best = r
		}
	}

	if bestScore <= 0 {
		log.Warnw("no root candidate referenced by any log entry; using first-seen fallback", "candidate", best)
	}
	return best, true
}
