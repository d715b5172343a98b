package bridge

import (
	cid "github.com/ipfs/go-cid"

	"github.com/ipfs/orbitdb-remote-bridge/logdb"
	"github.com/ipfs/orbitdb-remote-bridge/upload"
)

// BackupSummary is the BACKUP workflow's return value.
type BackupSummary struct {
	RootCID       cid.Cid
	SourceAddress string
	Total         int
	Uploaded      int
	Failed        []upload.Failure
	BySource      map[string]int
	Warnings      []string
}

// RestoreSummary is the RESTORE workflow's return value.
type RestoreSummary struct {
	Database         logdb.Database
	EntriesRecovered int
	AddressMatch     bool
	// Method is "fallback-reconstruction" when the fallback path ran,
	// empty otherwise.
	Method string
}

// LayerResult is one PURGE layer's outcome.
type LayerResult struct {
	Removed int
	Failed  int
}

// PurgeSummary is the PURGE workflow's return value.
type PurgeSummary struct {
	TotalFound   int
	TotalRemoved int
	TotalFailed  int
	ByLayer      map[string]LayerResult
	Success      bool
}
