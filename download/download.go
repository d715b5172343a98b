// Package download implements the Download Pipeline: for each
// remote-object entry, fetch its bytes via gateway failover, bridge its
// CID from raw to CBOR codec, and persist it into the local block store.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	cid "github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/ipfs/orbitdb-remote-bridge/cidbridge"
	"github.com/ipfs/orbitdb-remote-bridge/logdb"
	"github.com/ipfs/orbitdb-remote-bridge/progress"
)

var log = logging.Logger("orbitbridge/download")

// DefaultTimeout is the per-gateway-attempt timeout.
const DefaultTimeout = 30 * time.Second

// DefaultGateways is a reasonable default gateway list: a project-default
// gateway and a couple of widely used public gateways.
var DefaultGateways = []string{
	"https://w3s.link",
	"https://ipfs.io",
	"https://dweb.link",
}

// Entry is one remote-object reference to restore, mirroring
// remote.Item's Root field — the pipeline only needs the raw CID.
type Entry struct {
	Root cid.Cid
}

// Config bounds gateway fetch behavior.
type Config struct {
	Gateways   []string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (c Config) applyDefaults() Config {
	if len(c.Gateways) == 0 {
		c.Gateways = DefaultGateways
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return c
}

// Failure records one entry's download failure without aborting the run.
type Failure struct {
	Root   cid.Cid
	Reason string
}

// Result is the pipeline's return value.
type Result struct {
	Successful []cid.Cid
	Failed     []Failure
}

// Run fetches every entry serially, writing each into bs under its
// CBOR-codec CID. A failed entry (every configured gateway exhausted) is
// recorded and does not abort the run.
func Run(ctx context.Context, entries []Entry, bs logdb.BlockStore, cfg Config, bus *progress.Bus) (*Result, error) {
	cfg = cfg.applyDefaults()

	total := len(entries)
	if bus != nil {
		bus.Publish(progress.Event{Stage: progress.StageStarting, Total: total})
	}

	res := &Result{}
	for i, e := range entries {
		data, attempts, err := fetchViaGateways(ctx, cfg, e.Root)
		if err != nil {
			res.Failed = append(res.Failed, Failure{Root: e.Root, Reason: err.Error()})
			log.Warnw("gateway fetch failed for all configured gateways", "cid", e.Root, "attempts", attempts, "err", err)
			continue
		}

		cborCID, err := cidbridge.RawToCBOR(e.Root)
		if err != nil {
			res.Failed = append(res.Failed, Failure{Root: e.Root, Reason: err.Error()})
			continue
		}
		if err := bs.Put(ctx, cborCID, data); err != nil {
			res.Failed = append(res.Failed, Failure{Root: e.Root, Reason: err.Error()})
			continue
		}

		res.Successful = append(res.Successful, e.Root)
		if bus != nil {
			bus.Publish(progress.Event{
				Stage:           progress.StageDownloading,
				Current:         i + 1,
				Total:           total,
				Percent:         100 * float64(i+1) / float64(total),
				LastCID:         e.Root.String(),
				LastSize:        len(data),
				GatewayAttempts: attempts,
			})
		}
	}

	if bus != nil {
		bus.Publish(progress.Event{
			Stage:      progress.StageCompleted,
			Successful: len(res.Successful),
			Failed:     len(res.Failed),
		})
	}
	return res, nil
}

// fetchViaGateways tries each configured gateway in order, abandoning a
// failing gateway immediately with no backoff and moving to the next,
// grounded on the grounding client's FetchBlobViaGateway retry loop,
// adapted from per-gateway retries to per-gateway-in-list failover.
func fetchViaGateways(ctx context.Context, cfg Config, c cid.Cid) ([]byte, int, error) {
	var lastErr error
	attempts := 0

	for _, gw := range cfg.Gateways {
		attempts++
		data, err := fetchOne(ctx, cfg, gw, c)
		if err == nil {
			return data, attempts, nil
		}
		lastErr = err
		log.Debugw("gateway attempt failed", "gateway", gw, "cid", c, "err", err)
	}

	return nil, attempts, fmt.Errorf("all %d gateways failed for %s: %w", attempts, c, lastErr)
}

func fetchOne(ctx context.Context, cfg Config, gateway string, c cid.Cid) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	raw, err := cidbridge.RawString(c)
	if err != nil {
		raw = c.String()
	}
	url := fmt.Sprintf("%s/ipfs/%s", gateway, raw)

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway %s returned status %d", gateway, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
