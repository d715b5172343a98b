// Package upload implements the bounded-concurrency Upload Pipeline:
// every block in an Extraction Set is uploaded to the remote store, with
// progress events and a deterministic cid-to-cid_raw mapping, tolerating
// per-block failures without aborting the run.
package upload

import (
	"context"
	"fmt"
	"sort"
	"sync"

	cid "github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ipfs/orbitdb-remote-bridge/progress"
)

var log = logging.Logger("orbitbridge/upload")

// Defaults for pipeline concurrency.
const (
	DefaultBatchSize      = 10
	DefaultMaxConcurrency = 3
)

// Uploader is the remote store capability the pipeline consumes,
// satisfied by *remote.Client.
type Uploader interface {
	Upload(ctx context.Context, data []byte, name string) (cid.Cid, error)
}

// Config bounds the pipeline's concurrency.
type Config struct {
	BatchSize      int
	MaxConcurrency int
}

func (c Config) applyDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	return c
}

// Failure records one block's upload failure without aborting the run.
type Failure struct {
	CID    cid.Cid
	Reason string
}

// Result is the pipeline's return value.
type Result struct {
	// Mapping carries cid -> cid_raw for every block that uploaded
	// successfully.
	Mapping    map[cid.Cid]cid.Cid
	Successful []cid.Cid
	Failed     []Failure
}

// ErrNoProgress is returned when zero blocks uploaded — fatal to BACKUP.
var ErrNoProgress = fmt.Errorf("upload: no blocks uploaded successfully")

// Run uploads every block in blocks, in mega-batches of
// cfg.BatchSize*cfg.MaxConcurrency: within a mega-batch, up to
// MaxConcurrency batches run in parallel, each itself running up to
// BatchSize concurrent single-block uploads. The outer/inner bound is
// the same pattern the kalbasit-ncps migration tool uses for its
// NAR-to-chunk worker pool (errgroup.WithContext + SetLimit), nested one
// level deeper to get a mega-batch/batch split instead of that tool's
// single flat limit.
func Run(ctx context.Context, uploader Uploader, blocks map[cid.Cid][]byte, cfg Config, bus *progress.Bus) (*Result, error) {
	cfg = cfg.applyDefaults()

	ordered := make([]cid.Cid, 0, len(blocks))
	for c := range blocks {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	total := len(ordered)
	if bus != nil {
		bus.Publish(progress.Event{Stage: progress.StageStarting, Total: total})
	}

	res := &Result{Mapping: make(map[cid.Cid]cid.Cid)}
	var mu sync.Mutex
	var completed int

	megaBatch := cfg.BatchSize * cfg.MaxConcurrency
	for start := 0; start < total; start += megaBatch {
		end := start + megaBatch
		if end > total {
			end = total
		}
		mega := ordered[start:end]

		outer, outerCtx := errgroup.WithContext(ctx)
		outer.SetLimit(cfg.MaxConcurrency)

		for bstart := 0; bstart < len(mega); bstart += cfg.BatchSize {
			bend := bstart + cfg.BatchSize
			if bend > len(mega) {
				bend = len(mega)
			}
			batch := mega[bstart:bend]

			outer.Go(func() error {
				inner, innerCtx := errgroup.WithContext(outerCtx)
				inner.SetLimit(cfg.BatchSize)

				for _, c := range batch {
					c := c
					data := blocks[c]
					inner.Go(func() error {
						raw, err := uploader.Upload(innerCtx, data, c.String())

						mu.Lock()
						completed++
						current := completed
						if err != nil {
							res.Failed = append(res.Failed, Failure{CID: c, Reason: err.Error()})
							log.Warnw("block upload failed", "cid", c, "err", err)
						} else {
							res.Mapping[c] = raw
							res.Successful = append(res.Successful, c)
						}
						mu.Unlock()

						if bus != nil {
							bus.Publish(progress.Event{
								Stage:    progress.StageUploading,
								Current:  current,
								Total:    total,
								Percent:  100 * float64(current) / float64(total),
								LastCID:  c.String(),
								LastSize: len(data),
							})
						}
						return nil
					})
				}
				return inner.Wait()
			})
		}

		if err := outer.Wait(); err != nil {
			return nil, err
		}
	}

	if bus != nil {
		bus.Publish(progress.Event{
			Stage:      progress.StageCompleted,
			Successful: len(res.Successful),
			Failed:     len(res.Failed),
		})
	}

	if len(res.Successful) == 0 {
		return res, ErrNoProgress
	}
	return res, nil
}
