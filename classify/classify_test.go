package classify

import (
	"context"
	"testing"

	cid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	cbornode "github.com/ipfs/go-ipld-cbor"
	"github.com/ipfs/orbitdb-remote-bridge/logdb/logdbtest"
)

func put(t *testing.T, bs *logdbtest.MemBlockStore, obj interface{}) cid.Cid {
	t.Helper()
	nd, err := cbornode.WrapObject(obj, mh.SHA2_256, -1)
	if err != nil {
		t.Fatalf("WrapObject: %v", err)
	}
	if err := bs.Put(context.Background(), nd.Cid(), nd.RawData()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return nd.Cid()
}

func TestAnalyzeClassifiesAndBuildsHeads(t *testing.T) {
	ctx := context.Background()
	bs := logdbtest.NewMemBlockStore()

	acCID := put(t, bs, map[string]interface{}{"type": "orbitdb-access-controller"})
	rootCID := put(t, bs, map[string]interface{}{
		"accessController": "/ipfs/" + acCID.String(),
		"name":              "db",
		"type":              "eventlog",
		"meta":              map[string]interface{}{},
	})
	identCID := put(t, bs, map[string]interface{}{"id": "pubkey", "type": "ed25519"})

	entry1 := put(t, bs, map[string]interface{}{
		"v":        2,
		"id":       "/orbitdb/root",
		"clock":    map[string]interface{}{"id": "/orbitdb/root", "time": 1},
		"payload":  map[string]interface{}{"op": "ADD", "value": "a"},
		"next":     []string{},
		"refs":     []string{},
		"sig":      "s1",
		"key":      "k1",
		"identity": "i1",
	})
	entry2 := put(t, bs, map[string]interface{}{
		"v":        2,
		"id":       "/orbitdb/root",
		"clock":    map[string]interface{}{"id": "/orbitdb/root", "time": 2},
		"payload":  map[string]interface{}{"op": "ADD", "value": "b"},
		"next":     []string{entry1.String()},
		"refs":     []string{},
		"sig":      "s2",
		"key":      "k1",
		"identity": "i1",
	})
	unknownCID := put(t, bs, map[string]interface{}{"nonsense": true})

	candidates := []cid.Cid{rootCID, acCID, identCID, entry1, entry2, unknownCID}
	a, err := Analyze(ctx, bs, candidates)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(a.Roots) != 1 || a.Roots[0] != rootCID {
		t.Fatalf("roots = %v, want [%s]", a.Roots, rootCID)
	}
	if len(a.AccessControllers) != 1 || a.AccessControllers[0] != acCID {
		t.Fatalf("access controllers = %v, want [%s]", a.AccessControllers, acCID)
	}
	if len(a.Identities) != 1 || a.Identities[0] != identCID {
		t.Fatalf("identities = %v, want [%s]", a.Identities, identCID)
	}
	if len(a.LogEntries) != 2 {
		t.Fatalf("log entries = %d, want 2", len(a.LogEntries))
	}
	if len(a.Unknown) != 1 || a.Unknown[0] != unknownCID {
		t.Fatalf("unknown = %v, want [%s]", a.Unknown, unknownCID)
	}

	if a.Parent[entry1] != entry2 {
		t.Fatalf("Parent[entry1] = %s, want %s", a.Parent[entry1], entry2)
	}
	if len(a.Heads) != 1 || a.Heads[0] != entry2 {
		t.Fatalf("Heads = %v, want [%s] (entry2 is unreferenced)", a.Heads, entry2)
	}
}

func TestAnalyzeSkipsUnreadableCandidates(t *testing.T) {
	ctx := context.Background()
	bs := logdbtest.NewMemBlockStore()

	digest, err := mh.Sum([]byte("missing"), mh.SHA2_256, -1)
	if err != nil {
		t.Fatalf("mh.Sum: %v", err)
	}
	missing := cid.NewCidV1(cid.DagCBOR, digest)

	a, err := Analyze(ctx, bs, []cid.Cid{missing})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Roots)+len(a.AccessControllers)+len(a.Identities)+len(a.LogEntries)+len(a.Unknown) != 0 {
		t.Fatal("expected no classification for an unreadable candidate")
	}
}
