// Package cidbridge reinterprets content identifiers between the remote
// store's raw-binary multihash CIDs and the log DB's CBOR-codec multihash
// CIDs. The bridge never rehashes: both codecs share the same multihash, so
// the operation is a pure codec-byte swap.
package cidbridge

import (
	"fmt"
	"strings"

	cid "github.com/ipfs/go-cid"
	mbase "github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
	mh "github.com/multiformats/go-multihash"
)

// Named codec-code bindings from the multicodec table, rather than the bare
// 0x71/0x55 literals.
const (
	codecCBOR = uint64(multicodec.DagCbor)
	codecRaw  = uint64(multicodec.Raw)
)

var (
	ErrInvalidAddress = fmt.Errorf("invalid address")
	ErrUnsupportedCid = fmt.Errorf("unsupported cid")
)

// ParseAddress splits a database address of the form
// "/<scheme>/<root-cid-cbor>" and returns the parsed root CID.
func ParseAddress(address string) (cid.Cid, error) {
	parts := strings.Split(address, "/")
	if len(parts) == 0 {
		return cid.Undef, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	last := parts[len(parts)-1]
	if last == "" {
		return cid.Undef, fmt.Errorf("%w: missing cid segment in %q", ErrInvalidAddress, address)
	}

	scheme := ""
	if len(parts) >= 2 {
		scheme = parts[1]
	}
	if scheme == "" {
		return cid.Undef, fmt.Errorf("%w: empty scheme in %q", ErrInvalidAddress, address)
	}

	c, err := cid.Decode(last)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %s: %s", ErrInvalidAddress, address, err)
	}
	return c, nil
}

// Scheme returns the scheme segment of a database address, e.g. "orbitdb".
func Scheme(address string) string {
	parts := strings.Split(address, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// ComposeAddress rebuilds a database address from a scheme and root CID
// rendered in base58btc, the log DB's convention.
func ComposeAddress(scheme string, root cid.Cid) (string, error) {
	s, err := root.StringOfBase(mbase.Base58BTC)
	if err != nil {
		return "", err
	}
	return "/" + scheme + "/" + s, nil
}

// RawToCBOR reinterprets a raw-codec (0x55) CID as a CBOR-codec (0x71) CID
// with the same multihash. Its canonical base58btc rendering is produced by
// CBORString; the returned CID's String() uses the go-cid default (base32).
func RawToCBOR(c cid.Cid) (cid.Cid, error) {
	return reinterpret(c, codecCBOR)
}

// CBORToRaw reinterprets a CBOR-codec CID as a raw-codec CID with the same
// multihash. Its canonical base32 rendering, the remote store's
// convention, is produced by RawString.
func CBORToRaw(c cid.Cid) (cid.Cid, error) {
	return reinterpret(c, codecRaw)
}

func reinterpret(c cid.Cid, codec uint64) (cid.Cid, error) {
	if c.Version() != 1 {
		return cid.Undef, fmt.Errorf("%w: cid %s is not v1", ErrUnsupportedCid, c)
	}

	decoded, err := mh.Decode(c.Hash())
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %s", ErrUnsupportedCid, err)
	}
	if decoded.Code != mh.SHA2_256 {
		return cid.Undef, fmt.Errorf("%w: cid %s does not use sha2-256", ErrUnsupportedCid, c)
	}

	return cid.NewCidV1(codec, c.Hash()), nil
}

// RawString renders a raw-codec CID in base32, as the remote store expects
// when it is addressed as an upload key or listing entry.
func RawString(c cid.Cid) (string, error) {
	return c.StringOfBase(mbase.Base32)
}

// CBORString renders a CBOR-codec CID in base58btc, the log DB's
// convention for database addresses and block references.
func CBORString(c cid.Cid) (string, error) {
	return c.StringOfBase(mbase.Base58BTC)
}
