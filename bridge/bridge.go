// Package bridge is the Orchestrator: it wires the CID bridge, Block
// Extractor, Remote Client, Upload/Download pipelines, Block Analyzer,
// Root Selector, Fallback Reconstructor, and Progress Bus into the
// BACKUP, RESTORE, and PURGE workflows.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cid "github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	mh "github.com/multiformats/go-multihash"
	"golang.org/x/sync/errgroup"

	"github.com/ipfs/orbitdb-remote-bridge/cidbridge"
	"github.com/ipfs/orbitdb-remote-bridge/classify"
	"github.com/ipfs/orbitdb-remote-bridge/download"
	"github.com/ipfs/orbitdb-remote-bridge/extract"
	"github.com/ipfs/orbitdb-remote-bridge/fallback"
	"github.com/ipfs/orbitdb-remote-bridge/logdb"
	"github.com/ipfs/orbitdb-remote-bridge/progress"
	"github.com/ipfs/orbitdb-remote-bridge/remote"
	"github.com/ipfs/orbitdb-remote-bridge/rootselect"
	"github.com/ipfs/orbitdb-remote-bridge/upload"
)

var log = logging.Logger("orbitbridge/bridge")

// RemoteStore is the subset of *remote.Client the Orchestrator consumes.
// It is an interface, rather than a concrete *remote.Client field, purely
// so tests can substitute an in-memory fake instead of a live
// capability-authenticated service — mirroring the log-DB runtime's own
// logdb.Runtime/logdbtest split.
type RemoteStore interface {
	Upload(ctx context.Context, data []byte, name string) (cid.Cid, error)
	List(ctx context.Context, limit int, cursor string) (remote.Page, error)
	RemoveUpload(ctx context.Context, root cid.Cid) error
	RemoveStore(ctx context.Context, root cid.Cid) error
	RemoveBlob(ctx context.Context, digest mh.Multihash) error
}

// Bridge holds the components wired together for a single workflow
// construction — the remote client holds a per-workflow container
// selection.
type Bridge struct {
	rt     logdb.Runtime
	remote RemoteStore
	cfg    Config
}

// New constructs a Bridge, acquiring the remote client.
func New(rt logdb.Runtime, cfg Config) (*Bridge, error) {
	cfg = cfg.applyDefaults()

	rc, err := remote.New(remote.Config{
		RemoteKey:                cfg.RemoteKey,
		RemoteProof:              cfg.RemoteProof,
		DelegatedCapabilityToken: cfg.DelegatedCapabilityToken,
		RecipientKeyArchive:      cfg.RecipientKeyArchive,
		ContainerID:              cfg.ContainerID,
		ServiceDID:               cfg.ServiceDID,
		ServiceURL:               cfg.ServiceURL,
		Timeout:                  time.Duration(cfg.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, newError(KindAuthFailed, "construct remote client", err, nil)
	}

	return &Bridge{rt: rt, remote: rc, cfg: cfg}, nil
}

// NewWithRemote builds a Bridge against an already-constructed
// RemoteStore, skipping capability construction entirely. Production
// callers use New; tests use this with an in-memory fake.
func NewWithRemote(rt logdb.Runtime, cfg Config, rc RemoteStore) *Bridge {
	return &Bridge{rt: rt, remote: rc, cfg: cfg.applyDefaults()}
}

// newBus creates a progress.Bus for the duration of one workflow call,
// forwarding every event to cfg.EventConsumer (if set) on a background
// goroutine until stop is called.
func (b *Bridge) newBus() (bus *progress.Bus, stop func()) {
	bus = progress.NewBus()
	if b.cfg.EventConsumer == nil {
		return bus, func() {}
	}

	sub := bus.Subscribe(64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range sub {
			b.cfg.EventConsumer(ev)
		}
	}()

	return bus, func() {
		bus.Unsubscribe(sub)
		wg.Wait()
	}
}

// Backup runs the BACKUP workflow. Extraction mode follows
// cfg.LogEntriesOnly.
func (b *Bridge) Backup(ctx context.Context, addressOrName string) (*BackupSummary, error) {
	db, err := b.rt.Open(ctx, addressOrName, logdb.OpenOptions{})
	if err != nil {
		return nil, newError(KindOpenFailed, fmt.Sprintf("open %q", addressOrName), err, nil)
	}
	defer func() {
		if cerr := db.Close(ctx); cerr != nil {
			log.Warnw("close source database", "err", cerr)
		}
	}()

	mode := extract.ModeFull
	if b.cfg.LogEntriesOnly {
		mode = extract.ModeLogEntriesOnly
	}

	ext, err := extract.Extract(ctx, db, mode)
	if err != nil {
		return nil, newError(KindInvalidAddress, "extract source database", err, map[string]interface{}{"address": addressOrName})
	}

	bus, stop := b.newBus()
	defer stop()

	res, err := upload.Run(ctx, b.remote, ext.Blocks, upload.Config{
		BatchSize:      b.cfg.BatchSize,
		MaxConcurrency: b.cfg.MaxConcurrency,
	}, bus)
	if err != nil {
		return nil, newError(KindUploadNoProgress, "zero blocks uploaded", err, map[string]interface{}{"source_address": db.Address()})
	}

	bySource := make(map[string]int)
	for c := range ext.Blocks {
		bySource[string(ext.Sources[c])]++
	}

	return &BackupSummary{
		RootCID:       ext.Root,
		SourceAddress: db.Address(),
		Total:         len(ext.Blocks),
		Uploaded:      len(res.Successful),
		Failed:        res.Failed,
		BySource:      bySource,
		Warnings:      ext.Warnings,
	}, nil
}

// Restore runs the RESTORE workflow.
func (b *Bridge) Restore(ctx context.Context) (*RestoreSummary, error) {
	items, err := b.listAll(ctx)
	if err != nil {
		return nil, newError(KindAuthFailed, "list container for restore", err, nil)
	}

	entries := make([]download.Entry, 0, len(items))
	for _, it := range items {
		entries = append(entries, download.Entry{Root: it.Root})
	}

	bus, stop := b.newBus()
	dlRes, err := download.Run(ctx, entries, b.rt.BlockStore(), download.Config{
		Gateways: b.cfg.Gateways,
		Timeout:  time.Duration(b.cfg.TimeoutMS) * time.Millisecond,
	}, bus)
	stop()
	if err != nil {
		return nil, err
	}
	for _, f := range dlRes.Failed {
		log.Warnw("gateway unavailable for object", "root", f.Root, "reason", f.Reason)
	}

	candidates := make([]cid.Cid, 0, len(dlRes.Successful))
	for _, r := range dlRes.Successful {
		c, err := cidbridge.RawToCBOR(r)
		if err != nil {
			continue
		}
		candidates = append(candidates, c)
	}

	analysis, err := classify.Analyze(ctx, b.rt.BlockStore(), candidates)
	if err != nil {
		return nil, newError(KindInvalidAddress, "analyze downloaded blocks", err, nil)
	}

	if !b.cfg.ForceFallback {
		if root, ok := rootselect.Select(analysis, b.cfg.Scheme); ok {
			return b.restoreFromRoot(ctx, root)
		}
		log.Infow("analysis found no root candidates; switching to fallback reconstruction")
	}

	return b.restoreViaFallback(ctx, analysis)
}

func (b *Bridge) restoreFromRoot(ctx context.Context, root cid.Cid) (*RestoreSummary, error) {
	address, err := cidbridge.ComposeAddress(b.cfg.Scheme, root)
	if err != nil {
		return nil, newError(KindInvalidAddress, "compose restored address", err, nil)
	}

	db, err := b.rt.Open(ctx, address, logdb.OpenOptions{})
	if err != nil {
		return nil, newError(KindOpenFailed, fmt.Sprintf("open restored database %q", address), err, nil)
	}

	settle := time.Duration(b.cfg.TimeoutMS/10) * time.Millisecond
	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return nil, newError(KindCancelled, "restore cancelled while settling indices", ctx.Err(), nil)
	}

	entries, err := db.Log().Values(ctx)
	if err != nil {
		return nil, newError(KindOpenFailed, "read restored log", err, nil)
	}

	return &RestoreSummary{
		Database:         db,
		EntriesRecovered: len(entries),
		AddressMatch:     db.Address() == address,
	}, nil
}

func (b *Bridge) restoreViaFallback(ctx context.Context, analysis *classify.Analysis) (*RestoreSummary, error) {
	result, err := fallback.Reconstruct(ctx, b.rt, b.cfg.Identity, analysis, b.cfg.FallbackDatabaseName, time.Now())
	if err != nil {
		if errors.Is(err, fallback.ErrReconstructionEmpty) {
			return nil, newError(KindReconstructionEmpty, "no log entries survived decode", err, nil)
		}
		return nil, newError(KindOpenFailed, "fallback reconstruction", err, nil)
	}

	return &RestoreSummary{
		Database:         result.Database,
		EntriesRecovered: result.Metadata.ImportedCount,
		AddressMatch:     false,
		Method:           result.Metadata.Method,
	}, nil
}

// listAll drains every page of the current container's listing (spec
// §4.9 RESTORE step 2, §4.3 "list(limit?, cursor?) -> page").
func (b *Bridge) listAll(ctx context.Context) ([]remote.Item, error) {
	var items []remote.Item
	cursor := ""
	for {
		page, err := b.remote.List(ctx, 0, cursor)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	return items, nil
}

// Purge runs the PURGE workflow: list once, then remove every discovered
// CID from each of the three layers in turn.
func (b *Bridge) Purge(ctx context.Context) (*PurgeSummary, error) {
	items, err := b.listAll(ctx)
	if err != nil {
		return nil, newError(KindAuthFailed, "list container for purge", err, nil)
	}

	summary := &PurgeSummary{TotalFound: len(items), ByLayer: make(map[string]LayerResult)}

	for _, layer := range []string{"upload", "store", "blob"} {
		remover := b.removerFor(layer)
		removed, failed := b.purgeLayer(ctx, remover, items)
		summary.ByLayer[layer] = LayerResult{Removed: removed, Failed: failed}
		summary.TotalRemoved += removed
		summary.TotalFailed += failed
	}

	summary.Success = summary.TotalFailed == 0
	return summary, nil
}

func (b *Bridge) removerFor(layer string) func(context.Context, cid.Cid) error {
	switch layer {
	case "upload":
		return b.remote.RemoveUpload
	case "store":
		return b.remote.RemoveStore
	case "blob":
		return func(ctx context.Context, c cid.Cid) error { return b.remote.RemoveBlob(ctx, c.Hash()) }
	default:
		return func(context.Context, cid.Cid) error { return fmt.Errorf("unknown purge layer %q", layer) }
	}
}

// purgeLayer removes items in bounded batches with a small inter-batch
// pause, mirroring the Upload Pipeline's bounded-concurrency shape at a
// single nesting level.
func (b *Bridge) purgeLayer(ctx context.Context, remove func(context.Context, cid.Cid) error, items []remote.Item) (removed, failed int) {
	batchSize := b.cfg.BatchSize
	var mu sync.Mutex

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchSize)
		for _, it := range batch {
			it := it
			g.Go(func() error {
				err := remove(gctx, it.Root)
				mu.Lock()
				if err != nil {
					failed++
					log.Warnw("remove failed", "root", it.Root, "err", err)
				} else {
					removed++
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if end < len(items) {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}
	return
}
