// Package remote wraps the capability-authenticated remote object store:
// upload, list, removal at the upload/store/blob layers, and container
// selection. It is grounded directly on
// other_examples' relves-ucanlog internal/storage/storacha delegated
// client and tablelandnetwork basin-w3s uploader.
package remote

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	cid "github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/multiformats/go-multicodec"
	mh "github.com/multiformats/go-multihash"

	uploadcap "github.com/storacha/go-libstoracha/capabilities/upload"
	"github.com/storacha/go-ucanto/client"
	"github.com/storacha/go-ucanto/core/dag/blockstore"
	"github.com/storacha/go-ucanto/core/delegation"
	"github.com/storacha/go-ucanto/core/invocation"
	"github.com/storacha/go-ucanto/core/ipld"
	"github.com/storacha/go-ucanto/core/receipt"
	"github.com/storacha/go-ucanto/core/result"
	"github.com/storacha/go-ucanto/did"
	"github.com/storacha/go-ucanto/principal"
	"github.com/storacha/go-ucanto/principal/ed25519/signer"
	ucantohttp "github.com/storacha/go-ucanto/transport/http"
	"github.com/storacha/go-ucanto/ucan"
)

var log = logging.Logger("orbitbridge/remote")

// Capability abilities invoked against the remote service.
const (
	BlobAddAbility      = "blob/add"
	BlobRemoveAbility   = "blob/remove"
	UploadAddAbility    = "upload/add"
	UploadListAbility   = "upload/list"
	UploadRemoveAbility = "upload/remove"
	StoreRemoveAbility  = "store/remove"
)

const (
	defaultServiceDID = "did:web:up.storacha.network"
	defaultServiceURL = "https://up.storacha.network"
	defaultTimeout    = 30 * time.Second
)

// Config configures a Client. One auth mode must be populated:
// RemoteKey+RemoteProof (primary: a signing key plus a base64 delegation
// proof) or DelegatedCapabilityToken+RecipientKeyArchive (delegated
// capability, built from a separate authority's token plus the
// recipient's own signing key archive). When both are populated,
// RemoteKey+RemoteProof is used.
type Config struct {
	RemoteKey   string
	RemoteProof string

	DelegatedCapabilityToken string
	RecipientKeyArchive      []byte

	ContainerID string

	ServiceDID string
	ServiceURL string

	HTTPClient *http.Client
	Timeout    time.Duration
}

func (c *Config) applyDefaults() {
	if c.ServiceDID == "" {
		c.ServiceDID = defaultServiceDID
	}
	if c.ServiceURL == "" {
		c.ServiceURL = defaultServiceURL
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
}

// Client is the capability-authenticated remote object store client.
type Client struct {
	cfg       Config
	signer    principal.Signer
	proof     delegation.Delegation
	container did.DID
	conn      client.Connection
}

// New builds a Client, dispatching on which auth-mode fields of cfg are
// populated — legacy and delegated-capability auth collapse into one
// constructor: they differ only in how the capability is assembled.
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()

	var iss principal.Signer
	var proof delegation.Delegation
	var err error

	switch {
	case cfg.RemoteKey != "":
		iss, err = signer.Parse(cfg.RemoteKey)
		if err != nil {
			return nil, fmt.Errorf("remote: parse remote_key: %w", err)
		}
		proofBytes, err := base64.StdEncoding.DecodeString(cfg.RemoteProof)
		if err != nil {
			return nil, fmt.Errorf("remote: decode remote_proof: %w", err)
		}
		proof, err = delegation.ExtractProof(proofBytes)
		if err != nil {
			return nil, fmt.Errorf("remote: parse remote_proof: %w", err)
		}
	case cfg.DelegatedCapabilityToken != "":
		iss, err = signer.Decode(cfg.RecipientKeyArchive)
		if err != nil {
			return nil, fmt.Errorf("remote: decode recipient_key_archive: %w", err)
		}
		tokenBytes, err := base64.StdEncoding.DecodeString(cfg.DelegatedCapabilityToken)
		if err != nil {
			return nil, fmt.Errorf("remote: decode delegated_capability_token: %w", err)
		}
		proof, err = delegation.ExtractProof(tokenBytes)
		if err != nil {
			return nil, fmt.Errorf("remote: parse delegated_capability_token: %w", err)
		}
	default:
		return nil, fmt.Errorf("remote: one of remote_key or delegated_capability_token must be set")
	}

	container, err := did.Parse(cfg.ContainerID)
	if err != nil {
		return nil, fmt.Errorf("remote: parse container_id: %w", err)
	}

	serviceURL, err := url.Parse(cfg.ServiceURL)
	if err != nil {
		return nil, fmt.Errorf("remote: parse service_url: %w", err)
	}
	servicePrincipal, err := did.Parse(cfg.ServiceDID)
	if err != nil {
		return nil, fmt.Errorf("remote: parse service_did: %w", err)
	}

	channel := ucantohttp.NewChannel(serviceURL)
	conn, err := client.NewConnection(servicePrincipal, channel)
	if err != nil {
		return nil, fmt.Errorf("remote: create connection: %w", err)
	}

	return &Client{
		cfg:       cfg,
		signer:    iss,
		proof:     proof,
		container: container,
		conn:      conn,
	}, nil
}

// CurrentContainer returns the container (space) this client currently
// targets.
func (c *Client) CurrentContainer() string { return c.container.String() }

// SelectContainer switches the client to a different container referenced
// by the same delegation chain.
func (c *Client) SelectContainer(id string) error {
	d, err := did.Parse(id)
	if err != nil {
		return fmt.Errorf("remote: select_container: %w", err)
	}
	c.container = d
	return nil
}

// invoke runs a single capability invocation against ability/caveats on
// the client's container and unwraps its receipt, mirroring the
// UploadBlob/RemoveBlob/uploadAdd pattern shared by every capability call
// in the grounding client.
func invoke[C any](ctx context.Context, c *Client, ability string, caveats C) (ipld.Node, error) {
	capability := ucan.NewCapability(ability, c.container.String(), caveats)
	inv, err := invocation.Invoke(
		c.signer,
		c.conn.ID(),
		capability,
		delegation.WithProof(delegation.FromDelegation(c.proof)),
	)
	if err != nil {
		return nil, fmt.Errorf("remote: create %s invocation: %w", ability, err)
	}

	resp, err := client.Execute(ctx, []invocation.Invocation{inv}, c.conn)
	if err != nil {
		return nil, fmt.Errorf("remote: execute %s: %w", ability, err)
	}

	rcptLink, found := resp.Get(inv.Link())
	if !found {
		return nil, fmt.Errorf("remote: no receipt for %s", ability)
	}
	bs, err := blockstore.NewBlockStore(blockstore.WithBlocksIterator(resp.Blocks()))
	if err != nil {
		return nil, fmt.Errorf("remote: build response block store: %w", err)
	}
	rcpt, err := receipt.NewAnyReceipt(rcptLink, bs)
	if err != nil {
		return nil, fmt.Errorf("remote: read receipt: %w", err)
	}

	out, xerr := result.Unwrap(rcpt.Out())
	if xerr != nil {
		return nil, fmt.Errorf("remote: %s failed: %s", ability, describeFailure(xerr))
	}
	return out, nil
}

// describeFailure extracts the "message" field a service error payload
// carries, falling back to a generic %v rendering.
func describeFailure(xerr interface{}) string {
	errNode, ok := xerr.(ipld.Node)
	if !ok {
		return fmt.Sprintf("%v", xerr)
	}
	msgNode, err := errNode.LookupByString("message")
	if err != nil {
		return fmt.Sprintf("%v", xerr)
	}
	msg, err := msgNode.AsString()
	if err != nil {
		return fmt.Sprintf("%v", xerr)
	}
	return msg
}

// blobAddCaveats mirrors the grounding client's locally defined caveats
// shape for blob/add — a digest plus size, addressed by multihash rather
// than CID (the remote service is codec-agnostic at this layer).
type blobAddCaveats struct {
	Blob blobRef `ipld:"blob"`
}

type blobRef struct {
	Digest mh.Multihash `ipld:"digest"`
	Size   uint64       `ipld:"size"`
}

type blobRemoveCaveats struct {
	Digest mh.Multihash `ipld:"digest"`
}

// Upload uploads a single opaque blob and returns its raw-codec CID.
// name is carried only for progress/observability; the remote object is
// addressed purely by content hash.
func (c *Client) Upload(ctx context.Context, data []byte, name string) (cid.Cid, error) {
	digest, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("remote: hash blob: %w", err)
	}
	raw := cid.NewCidV1(uint64(multicodec.Raw), digest)

	log.Debugw("uploading blob", "name", name, "cid", raw, "bytes", len(data))

	_, err = invoke(ctx, c, BlobAddAbility, blobAddCaveats{
		Blob: blobRef{Digest: digest, Size: uint64(len(data))},
	})
	if err != nil {
		return cid.Undef, err
	}

	rootLink := cidlink.Link{Cid: raw}
	_, err = invoke(ctx, c, UploadAddAbility, uploadcap.AddCaveats{
		Root:   rootLink,
		Shards: []ipld.Link{rootLink},
	})
	if err != nil {
		return cid.Undef, err
	}

	return raw, nil
}

// Item is one object in a container listing.
type Item struct {
	Root       cid.Cid
	InsertedAt time.Time
	Size       int64
}

// Page is one page of a container listing.
type Page struct {
	Items  []Item
	Cursor string
}

type listCaveats struct {
	Cursor string `ipld:"cursor,omitempty"`
	Size   int    `ipld:"size,omitempty"`
}

// List enumerates objects in the current container.
func (c *Client) List(ctx context.Context, limit int, cursor string) (Page, error) {
	out, err := invoke(ctx, c, UploadListAbility, listCaveats{Cursor: cursor, Size: limit})
	if err != nil {
		return Page{}, err
	}
	return decodeListing(out)
}

func decodeListing(node ipld.Node) (Page, error) {
	var page Page

	resultsNode, err := node.LookupByString("results")
	if err != nil {
		return page, fmt.Errorf("remote: list response missing results: %w", err)
	}
	it := resultsNode.ListIterator()
	for !it.Done() {
		_, item, err := it.Next()
		if err != nil {
			return page, fmt.Errorf("remote: list response item: %w", err)
		}

		rootNode, err := item.LookupByString("root")
		if err != nil {
			continue
		}
		rootLink, err := rootNode.AsLink()
		if err != nil {
			continue
		}
		cl, ok := rootLink.(cidlink.Link)
		if !ok {
			continue
		}

		var sizeVal int64
		if sizeNode, err := item.LookupByString("size"); err == nil {
			if n, err := sizeNode.AsInt(); err == nil {
				sizeVal = int64(n)
			}
		}
		var inserted time.Time
		if insNode, err := item.LookupByString("insertedAt"); err == nil {
			if s, err := insNode.AsString(); err == nil {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					inserted = t
				}
			}
		}

		page.Items = append(page.Items, Item{Root: cl.Cid, InsertedAt: inserted, Size: sizeVal})
	}

	if cursorNode, err := node.LookupByString("cursor"); err == nil {
		if s, err := cursorNode.AsString(); err == nil {
			page.Cursor = s
		}
	}
	return page, nil
}

// RemoveUpload deletes an upload registration.
func (c *Client) RemoveUpload(ctx context.Context, root cid.Cid) error {
	_, err := invoke(ctx, c, UploadRemoveAbility, uploadcap.RemoveCaveats{Root: cidlink.Link{Cid: root}})
	return err
}

// RemoveStore deletes a store-layer entry.
func (c *Client) RemoveStore(ctx context.Context, root cid.Cid) error {
	_, err := invoke(ctx, c, StoreRemoveAbility, struct {
		Link ipld.Link `ipld:"link"`
	}{Link: cidlink.Link{Cid: root}})
	return err
}

// RemoveBlob deletes the underlying content-addressed blob.
func (c *Client) RemoveBlob(ctx context.Context, digest mh.Multihash) error {
	_, err := invoke(ctx, c, BlobRemoveAbility, blobRemoveCaveats{Digest: digest})
	return err
}
