package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cid "github.com/ipfs/go-cid"

	"github.com/ipfs/orbitdb-remote-bridge/extract"
	"github.com/ipfs/orbitdb-remote-bridge/fallback"
	"github.com/ipfs/orbitdb-remote-bridge/logdb"
	"github.com/ipfs/orbitdb-remote-bridge/logdb/logdbtest"
	"github.com/ipfs/orbitdb-remote-bridge/remote/remotetest"
	"github.com/ipfs/orbitdb-remote-bridge/upload"
)

// gatewayServing starts an httptest.Server that serves bytes out of store
// by raw CID, the way a real gateway would serve what was uploaded.
func gatewayServing(t *testing.T, store *remotetest.Store) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := strings.TrimPrefix(r.URL.Path, "/ipfs/")
		c, err := cid.Decode(s)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		data, ok := store.Get(c)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(gateway string) Config {
	return Config{
		TimeoutMS: 100,
		Gateways:  []string{gateway},
	}
}

// TestBackupRestoreRoundTripEventLog covers spec scenario A: an event-log
// database backed up then restored produces the same address and entry
// count.
func TestBackupRestoreRoundTripEventLog(t *testing.T) {
	ctx := context.Background()
	rt := logdbtest.NewMemRuntime()
	store := remotetest.NewStore()
	gw := gatewayServing(t, store)

	db, err := rt.Open(ctx, "notes", logdb.OpenOptions{Create: true, Kind: "eventlog", Name: "notes"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	adder := db.(*logdbtest.MemDatabase)
	if err := adder.Add(ctx, "first"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := adder.Add(ctx, "second"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	originalAddress := db.Address()

	b := NewWithRemote(rt, testConfig(gw.URL), store)

	backupSummary, err := b.Backup(ctx, "notes")
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if backupSummary.Uploaded != backupSummary.Total {
		t.Fatalf("uploaded %d of %d blocks", backupSummary.Uploaded, backupSummary.Total)
	}
	if len(backupSummary.Failed) != 0 {
		t.Fatalf("unexpected upload failures: %v", backupSummary.Failed)
	}

	restoreSummary, err := b.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restoreSummary.Method != "" {
		t.Fatalf("method = %q, want round-trip restore (no fallback)", restoreSummary.Method)
	}
	if !restoreSummary.AddressMatch {
		t.Fatal("expected restored database address to match the original")
	}
	if restoreSummary.Database.Address() != originalAddress {
		t.Fatalf("restored address = %q, want %q", restoreSummary.Database.Address(), originalAddress)
	}
	if restoreSummary.EntriesRecovered != 2 {
		t.Fatalf("entries recovered = %d, want 2", restoreSummary.EntriesRecovered)
	}
}

// TestRestoreFallsBackWhenForced covers spec scenario D: RESTORE with no
// recoverable root reconstructs the database from log entries alone.
func TestRestoreFallsBackWhenForced(t *testing.T) {
	ctx := context.Background()
	rt := logdbtest.NewMemRuntime()
	store := remotetest.NewStore()
	gw := gatewayServing(t, store)

	db, err := rt.Open(ctx, "kv", logdb.OpenOptions{Create: true, Kind: "keyvalue", Name: "kv"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	kvdb := db.(*logdbtest.MemDatabase)
	if err := kvdb.Put(ctx, "a", "1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := kvdb.Put(ctx, "b", "2"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Upload only the log-entry blocks, simulating a root/access-controller
	// that never made it to the remote store.
	ext, err := extract.Extract(ctx, db, extract.ModeLogEntriesOnly)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := upload.Run(ctx, store, ext.Blocks, upload.Config{}, nil); err != nil {
		t.Fatalf("upload.Run: %v", err)
	}

	cfg := testConfig(gw.URL)
	cfg.ForceFallback = true
	cfg.FallbackDatabaseName = "recovered-kv"
	b := NewWithRemote(rt, cfg, store)

	restoreSummary, err := b.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restoreSummary.Method != fallback.Method {
		t.Fatalf("method = %q, want %q", restoreSummary.Method, fallback.Method)
	}
	if restoreSummary.AddressMatch {
		t.Fatal("fallback-reconstructed database must not report an address match")
	}
	if restoreSummary.EntriesRecovered != 2 {
		t.Fatalf("entries recovered = %d, want 2", restoreSummary.EntriesRecovered)
	}

	view, err := restoreSummary.Database.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	kv, ok := view.(map[string]interface{})
	if !ok || kv["a"] != "1" || kv["b"] != "2" {
		t.Fatalf("All() = %#v, want {a:1, b:2}", view)
	}
}

// TestPurgeDrainsEveryLayer covers spec scenario F: PURGE removes every
// backed-up object from all three remote layers.
func TestPurgeDrainsEveryLayer(t *testing.T) {
	ctx := context.Background()
	rt := logdbtest.NewMemRuntime()
	store := remotetest.NewStore()
	gw := gatewayServing(t, store)

	db, err := rt.Open(ctx, "notes", logdb.OpenOptions{Create: true, Kind: "eventlog", Name: "notes"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.(*logdbtest.MemDatabase).Add(ctx, "entry"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	b := NewWithRemote(rt, testConfig(gw.URL), store)

	backupSummary, err := b.Backup(ctx, "notes")
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if backupSummary.Uploaded == 0 {
		t.Fatal("expected at least one uploaded block before purging")
	}
	if store.Empty() {
		t.Fatal("expected the remote store to hold objects after backup")
	}

	purgeSummary, err := b.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if !purgeSummary.Success {
		t.Fatalf("purge did not fully succeed: %+v", purgeSummary)
	}
	if purgeSummary.TotalFound != backupSummary.Total {
		t.Fatalf("purge found %d objects, want %d", purgeSummary.TotalFound, backupSummary.Total)
	}
	for _, layer := range []string{"upload", "store", "blob"} {
		lr, ok := purgeSummary.ByLayer[layer]
		if !ok || lr.Failed != 0 || lr.Removed != backupSummary.Total {
			t.Fatalf("layer %q = %+v, want Removed=%d Failed=0", layer, lr, backupSummary.Total)
		}
	}
	if !store.Empty() {
		t.Fatal("expected the remote store to be fully drained after purge")
	}
}

func TestBackupFailsWhenSourceDatabaseMissing(t *testing.T) {
	ctx := context.Background()
	rt := logdbtest.NewMemRuntime()
	store := remotetest.NewStore()
	gw := gatewayServing(t, store)

	b := NewWithRemote(rt, testConfig(gw.URL), store)
	if _, err := b.Backup(ctx, "does-not-exist"); err == nil {
		t.Fatal("expected an error backing up a nonexistent database")
	}
}

func TestRestoreTimeoutBudgetIsRespected(t *testing.T) {
	// Guards against a regression where restoreFromRoot's settle delay
	// scales with the full per-attempt timeout instead of a fraction of
	// it; this test would hang well past its own deadline otherwise.
	start := time.Now()
	ctx := context.Background()
	rt := logdbtest.NewMemRuntime()
	store := remotetest.NewStore()
	gw := gatewayServing(t, store)

	db, err := rt.Open(ctx, "notes", logdb.OpenOptions{Create: true, Kind: "eventlog", Name: "notes"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.(*logdbtest.MemDatabase).Add(ctx, "x"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	b := NewWithRemote(rt, testConfig(gw.URL), store)
	if _, err := b.Backup(ctx, "notes"); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if _, err := b.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Restore took %s, want well under 2s with TimeoutMS=100", elapsed)
	}
}
