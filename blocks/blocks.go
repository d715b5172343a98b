// Package blocks decodes and classifies the CBOR block shapes that make up
// an OrbitDB-style log database: root, access-controller, log-entry, and
// identity blocks.
package blocks

import (
	"fmt"

	cid "github.com/ipfs/go-cid"
	cbornode "github.com/ipfs/go-ipld-cbor"
)

// Source classifies a decoded block by its role in a database.
type Source string

const (
	SourceRoot             Source = "root"
	SourceAccessController Source = "access_controller"
	SourceLogEntry         Source = "log_entry"
	SourceIdentity         Source = "identity"
	SourceUnknown          Source = "unknown"
)

// Clock is a log entry's Lamport-style logical clock.
type Clock struct {
	ID   string `json:"id"`
	Time int64  `json:"time"`
}

// LogEntry is the decoded shape of a log-entry block.
type LogEntry struct {
	V        int           `json:"v"`
	ID       string        `json:"id"`
	Clock    Clock         `json:"clock"`
	Payload  interface{}   `json:"payload"`
	Next     []string      `json:"next"`
	Refs     []string      `json:"refs"`
	Sig      string        `json:"sig"`
	Key      string        `json:"key"`
	Identity string        `json:"identity"`
}

// RootBlock is the decoded shape of a database's root/manifest block.
type RootBlock struct {
	AccessController interface{} `json:"accessController"`
	Name             string      `json:"name"`
	Type             string      `json:"type"`
	Meta             interface{} `json:"meta"`
}

// AccessControllerBlock is the decoded shape of an access-controller block.
type AccessControllerBlock struct {
	Type string `json:"type"`
}

// IdentityBlock is the decoded shape of an identity block.
type IdentityBlock struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Payload operation tags.
const (
	OpAdd     = "ADD"
	OpPut     = "PUT"
	OpDel     = "DEL"
	OpCounter = "COUNTER"
	OpDec     = "DEC"
)

// knownAccessControllerTypes lists the access-controller type strings this
// bridge recognizes.
var knownAccessControllerTypes = map[string]bool{
	"orbitdb-access-controller": true,
	"ipfs":                      true,
}

// Classify decodes raw CBOR bytes and determines which of the four known
// block shapes it matches. The raw decoded map is also returned so callers
// needing arbitrary fields (e.g. the fallback reconstructor's payload
// tallies) need not re-decode.
func Classify(c cid.Cid, raw []byte) (Source, map[string]interface{}, error) {
	if c.Type() != cid.DagCBOR {
		return SourceUnknown, nil, nil
	}

	var m map[string]interface{}
	if err := cbornode.DecodeInto(raw, &m); err != nil {
		return SourceUnknown, nil, fmt.Errorf("decode block %s: %w", c, err)
	}

	if _, ok := m["accessController"]; ok {
		return SourceRoot, m, nil
	}

	if t, ok := m["type"].(string); ok && knownAccessControllerTypes[t] {
		if _, hasID := m["id"]; !hasID {
			return SourceAccessController, m, nil
		}
	}

	_, hasSig := m["sig"]
	_, hasKey := m["key"]
	_, hasIdentity := m["identity"]
	_, hasPayload := m["payload"]
	v, hasV := m["v"]
	_, hasClock := m["clock"]
	if hasSig && hasKey && hasIdentity && hasPayload && hasClock && hasV {
		if vf, ok := toFloat(v); ok && int(vf) == 2 {
			return SourceLogEntry, m, nil
		}
	}

	_, hasID := m["id"]
	_, hasType := m["type"]
	if hasID && hasType && !hasSig && !hasPayload {
		return SourceIdentity, m, nil
	}

	return SourceUnknown, m, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// DecodeLogEntry decodes a block already classified as SourceLogEntry into
// its typed shape.
func DecodeLogEntry(raw []byte) (*LogEntry, error) {
	var e LogEntry
	if err := cbornode.DecodeInto(raw, &e); err != nil {
		return nil, fmt.Errorf("decode log entry: %w", err)
	}
	return &e, nil
}

// DecodeRoot decodes a block already classified as SourceRoot.
func DecodeRoot(raw []byte) (*RootBlock, error) {
	var r RootBlock
	if err := cbornode.DecodeInto(raw, &r); err != nil {
		return nil, fmt.Errorf("decode root block: %w", err)
	}
	return &r, nil
}

// AccessControllerRef extracts the referenced access-controller CID from a
// root block's `accessController` field, which may be formatted as
// `"/ipfs/<cid>"` or a bare CID string.
func AccessControllerRef(root *RootBlock) (cid.Cid, bool) {
	s, ok := root.AccessController.(string)
	if !ok || s == "" {
		return cid.Undef, false
	}
	const prefix = "/ipfs/"
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		s = s[len(prefix):]
	}
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, false
	}
	return c, true
}
