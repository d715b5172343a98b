// Package remotetest is an in-memory fake of the capability-authenticated
// remote object store (bridge.RemoteStore / the subset of *remote.Client
// the Orchestrator consumes), mirroring logdbtest's role for the log-DB
// runtime. It exists purely to drive tests without live network or
// capability infrastructure.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	cid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/ipfs/orbitdb-remote-bridge/remote"
)

type object struct {
	data       []byte
	insertedAt time.Time
	uploadReg  bool
	storeReg   bool
	blobReg    bool
}

// Store is an in-memory remote object store keyed by raw-codec CID.
// Upload is idempotent: repeated uploads of identical bytes produce the
// same CID and simply refresh the existing entry.
type Store struct {
	mu      sync.Mutex
	objects map[cid.Cid]*object
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{objects: make(map[cid.Cid]*object)}
}

// Upload implements bridge.RemoteStore / remote.Client's Upload.
func (s *Store) Upload(_ context.Context, data []byte, _ string) (cid.Cid, error) {
	digest, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	root := cid.NewCidV1(cid.Raw, digest)

	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[root]
	if !ok {
		obj = &object{insertedAt: time.Now()}
		s.objects[root] = obj
	}
	obj.data = data
	obj.uploadReg = true
	obj.storeReg = true
	obj.blobReg = true
	return root, nil
}

// List implements paginated listing. limit<=0 returns everything in one
// page.
func (s *Store) List(_ context.Context, limit int, cursor string) (remote.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roots := make([]cid.Cid, 0, len(s.objects))
	for c, obj := range s.objects {
		if obj.uploadReg {
			roots = append(roots, c)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].String() < roots[j].String() })

	start := 0
	if cursor != "" {
		for i, c := range roots {
			if c.String() == cursor {
				start = i + 1
				break
			}
		}
	}
	end := len(roots)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	page := remote.Page{}
	for _, c := range roots[start:end] {
		obj := s.objects[c]
		page.Items = append(page.Items, remote.Item{Root: c, InsertedAt: obj.insertedAt, Size: int64(len(obj.data))})
	}
	if end < len(roots) {
		page.Cursor = roots[end-1].String()
	}
	return page, nil
}

// RemoveUpload implements upload/remove.
func (s *Store) RemoveUpload(_ context.Context, root cid.Cid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[root]
	if !ok {
		return fmt.Errorf("remotetest: unknown object %s", root)
	}
	obj.uploadReg = false
	return nil
}

// RemoveStore implements store/remove.
func (s *Store) RemoveStore(_ context.Context, root cid.Cid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[root]
	if !ok {
		return fmt.Errorf("remotetest: unknown object %s", root)
	}
	obj.storeReg = false
	return nil
}

// RemoveBlob implements blob/remove, looking the object up by its
// digest rather than its full CID.
func (s *Store) RemoveBlob(_ context.Context, digest mh.Multihash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c, obj := range s.objects {
		if string(c.Hash()) == string(digest) {
			obj.blobReg = false
			if !obj.uploadReg && !obj.storeReg && !obj.blobReg {
				delete(s.objects, c)
			}
			return nil
		}
	}
	return fmt.Errorf("remotetest: unknown digest")
}

// Get returns the bytes uploaded under root, for test assertions that
// need to fetch what a gateway would serve.
func (s *Store) Get(root cid.Cid) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[root]
	if !ok {
		return nil, false
	}
	return obj.data, true
}

// Empty reports whether every layer has been purged for every object.
func (s *Store) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range s.objects {
		if obj.uploadReg || obj.storeReg || obj.blobReg {
			return false
		}
	}
	return true
}
