package bridge

import (
	"github.com/ipfs/orbitdb-remote-bridge/download"
	"github.com/ipfs/orbitdb-remote-bridge/identity"
	"github.com/ipfs/orbitdb-remote-bridge/progress"
	"github.com/ipfs/orbitdb-remote-bridge/upload"
)

// DefaultScheme is the address scheme the Orchestrator composes restored
// addresses under, matching the log-DB runtime convention used throughout
// this bridge ("orbitdb").
const DefaultScheme = "orbitdb"

// DefaultTimeoutMS is the per-attempt network timeout default.
const DefaultTimeoutMS = 30000

// Config is the Orchestrator's configuration surface, with an
// ApplyDefaults-style method in the grounding client's
// DelegatedClientConfig.ApplyDefaults idiom.
type Config struct {
	TimeoutMS      int64
	Gateways       []string
	BatchSize      int
	MaxConcurrency int

	RemoteKey   string
	RemoteProof string

	DelegatedCapabilityToken string
	RecipientKeyArchive      []byte

	ContainerID string
	ServiceDID  string
	ServiceURL  string

	ForceFallback        bool
	FallbackDatabaseName string
	LogEntriesOnly       bool

	Scheme string

	// Identity mints identities for the fallback reconstruction path.
	// Defaults to identity.Ed25519Factory.
	Identity identity.Factory

	// EventConsumer, if set, receives the progress.Events emitted by
	// the Upload and Download pipelines during a workflow. Delivery goes
	// through a 64-event subscription buffer; events published while that
	// buffer is full are dropped.
	EventConsumer func(progress.Event)
}

func (c Config) applyDefaults() Config {
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = DefaultTimeoutMS
	}
	if len(c.Gateways) == 0 {
		c.Gateways = download.DefaultGateways
	}
	if c.BatchSize <= 0 {
		c.BatchSize = upload.DefaultBatchSize
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = upload.DefaultMaxConcurrency
	}
	if c.Scheme == "" {
		c.Scheme = DefaultScheme
	}
	if c.FallbackDatabaseName == "" {
		c.FallbackDatabaseName = "restored"
	}
	if c.Identity == nil {
		c.Identity = identity.Ed25519Factory{}
	}
	return c
}
