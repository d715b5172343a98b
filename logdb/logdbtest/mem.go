// Package logdbtest is an in-memory fake of the log-DB runtime contract
// (logdb.Runtime), modeled on OrbitDB's oplog.Entry shape. It exists purely
// to drive tests for the components that consume logdb.Runtime — it is not
// part of the shipped bridge.
package logdbtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	cid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	cbornode "github.com/ipfs/go-ipld-cbor"
	"github.com/ipfs/orbitdb-remote-bridge/cidbridge"
	"github.com/ipfs/orbitdb-remote-bridge/identity"
	"github.com/ipfs/orbitdb-remote-bridge/logdb"
)

// Scheme is the address scheme used by the fake runtime's databases.
const Scheme = "orbitdb"

// MemBlockStore is a trivial in-memory logdb.BlockStore backed by a map
// keyed on CID.
type MemBlockStore struct {
	mu   sync.RWMutex
	data map[cid.Cid][]byte
}

func NewMemBlockStore() *MemBlockStore {
	return &MemBlockStore{data: make(map[cid.Cid][]byte)}
}

func (m *MemBlockStore) Get(_ context.Context, c cid.Cid) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[c]
	if !ok {
		return nil, fmt.Errorf("block not found: %s", c)
	}
	return b, nil
}

func (m *MemBlockStore) Put(_ context.Context, c cid.Cid, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[c] = data
	return nil
}

func (m *MemBlockStore) Has(_ context.Context, c cid.Cid) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[c]
	return ok, nil
}

func (m *MemBlockStore) All(ctx context.Context) (<-chan cid.Cid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(chan cid.Cid, len(m.data))
	for c := range m.data {
		out <- c
	}
	close(out)
	return out, nil
}

// MemRuntime is an in-memory logdb.Runtime.
type MemRuntime struct {
	mu   sync.Mutex
	bs   *MemBlockStore
	dbs  map[string]*MemDatabase // by address
	byName map[string]*MemDatabase
	factory identity.Factory
}

func NewMemRuntime() *MemRuntime {
	return &MemRuntime{
		bs:      NewMemBlockStore(),
		dbs:     make(map[string]*MemDatabase),
		byName:  make(map[string]*MemDatabase),
		factory: identity.Ed25519Factory{},
	}
}

func (r *MemRuntime) BlockStore() logdb.BlockStore { return r.bs }

func (r *MemRuntime) Open(ctx context.Context, addressOrName string, opts logdb.OpenOptions) (logdb.Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(addressOrName) > 0 && addressOrName[0] == '/' {
		db, ok := r.dbs[addressOrName]
		if !ok {
			return nil, fmt.Errorf("no database at address %s", addressOrName)
		}
		return db, nil
	}

	if db, ok := r.byName[addressOrName]; ok {
		return db, nil
	}
	if !opts.Create {
		return nil, fmt.Errorf("no database named %s", addressOrName)
	}

	ident := opts.Identity
	if ident == nil {
		var err error
		ident, err = r.factory.Create(ctx, addressOrName)
		if err != nil {
			return nil, err
		}
	}
	db, err := newMemDatabase(ctx, r.bs, ident, opts.Kind, addressOrName)
	if err != nil {
		return nil, err
	}
	r.dbs[db.address] = db
	r.byName[addressOrName] = db
	return db, nil
}

// entryRecord is the in-memory decoded form of a stored log-entry block.
type entryRecord struct {
	cid     cid.Cid
	payload interface{}
	clock   int64
	next    []cid.Cid
}

// MemDatabase is an in-memory logdb.Database.
type MemDatabase struct {
	mu       sync.Mutex
	bs       *MemBlockStore
	identity *identity.Identity
	kind     string
	name     string
	address  string
	rootCID  cid.Cid
	entries  []entryRecord
	heads    map[cid.Cid]bool
}

func newMemDatabase(ctx context.Context, bs *MemBlockStore, ident *identity.Identity, kind, name string) (*MemDatabase, error) {
	acCID, err := putBlock(ctx, bs, map[string]interface{}{
		"type": "orbitdb-access-controller",
	})
	if err != nil {
		return nil, err
	}

	acStr, err := cidbridge.CBORString(acCID)
	if err != nil {
		return nil, err
	}

	rootCID, err := putBlock(ctx, bs, map[string]interface{}{
		"accessController": "/ipfs/" + acStr,
		"name":             name,
		"type":             kind,
		"meta":             map[string]interface{}{},
	})
	if err != nil {
		return nil, err
	}

	if _, err := putBlock(ctx, bs, map[string]interface{}{
		"id":   ident.ID,
		"type": ident.Type,
	}); err != nil {
		return nil, err
	}

	address, err := cidbridge.ComposeAddress(Scheme, rootCID)
	if err != nil {
		return nil, err
	}

	return &MemDatabase{
		bs:       bs,
		identity: ident,
		kind:     kind,
		name:     name,
		address:  address,
		rootCID:  rootCID,
		heads:    make(map[cid.Cid]bool),
	}, nil
}

func putBlock(ctx context.Context, bs *MemBlockStore, obj interface{}) (cid.Cid, error) {
	nd, err := cbornode.WrapObject(obj, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	if err := bs.Put(ctx, nd.Cid(), nd.RawData()); err != nil {
		return cid.Undef, err
	}
	return nd.Cid(), nil
}

func (d *MemDatabase) Address() string { return d.address }
func (d *MemDatabase) Name() string    { return d.name }
func (d *MemDatabase) Type() string    { return d.kind }
func (d *MemDatabase) BlockStore() logdb.BlockStore { return d.bs }
func (d *MemDatabase) Close(context.Context) error  { return nil }

func (d *MemDatabase) Log() logdb.Log { return (*memLog)(d) }

type memLog MemDatabase

func (l *memLog) Values(ctx context.Context) ([]logdb.LogEntryRef, error) {
	db := (*MemDatabase)(l)
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]logdb.LogEntryRef, len(db.entries))
	for i, e := range db.entries {
		out[i] = logdb.LogEntryRef{CID: e.cid}
	}
	return out, nil
}

func (l *memLog) Heads(ctx context.Context) ([]logdb.LogEntryRef, error) {
	db := (*MemDatabase)(l)
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]logdb.LogEntryRef, 0, len(db.heads))
	for c := range db.heads {
		out = append(out, logdb.LogEntryRef{CID: c})
	}
	return out, nil
}

// append writes a new log-entry block carrying payload, referencing the
// current heads as `next`, and advances the logical clock.
func (d *MemDatabase) append(ctx context.Context, payload interface{}) (cid.Cid, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	maxClock := int64(0)
	next := make([]string, 0, len(d.heads))
	var nextCids []cid.Cid
	for c := range d.heads {
		next = append(next, c.String())
		nextCids = append(nextCids, c)
	}
	for _, e := range d.entries {
		if e.clock > maxClock {
			maxClock = e.clock
		}
	}
	clock := maxClock + 1

	obj := map[string]interface{}{
		"v":   2,
		"id":  d.address,
		"clock": map[string]interface{}{
			"id":   d.address,
			"time": clock,
		},
		"payload":  payload,
		"next":     next,
		"refs":     []string{},
		"key":      d.identity.PublicKeyHex(),
		"identity": d.identity.ID,
	}
	data, err := cbornode.DumpObject(obj)
	if err != nil {
		return cid.Undef, err
	}
	sig, err := d.identity.Sign(data)
	if err != nil {
		return cid.Undef, err
	}
	obj["sig"] = sig

	c, err := putBlock(ctx, d.bs, obj)
	if err != nil {
		return cid.Undef, err
	}

	for _, p := range nextCids {
		delete(d.heads, p)
	}
	d.heads[c] = true
	d.entries = append(d.entries, entryRecord{cid: c, payload: payload, clock: clock, next: nextCids})
	return c, nil
}

// Add appends an event-log value.
func (d *MemDatabase) Add(ctx context.Context, value interface{}) error {
	_, err := d.append(ctx, map[string]interface{}{"op": blocksOpAdd, "value": value})
	return err
}

// Put writes a key-value pair.
func (d *MemDatabase) Put(ctx context.Context, key string, value interface{}) error {
	_, err := d.append(ctx, map[string]interface{}{"op": blocksOpPut, "key": key, "value": value})
	return err
}

// Del removes a key-value pair or document.
func (d *MemDatabase) Del(ctx context.Context, key string) error {
	_, err := d.append(ctx, map[string]interface{}{"op": blocksOpDel, "key": key})
	return err
}

// PutDoc writes a document; doc must carry an "_id" field.
func (d *MemDatabase) PutDoc(ctx context.Context, doc map[string]interface{}) error {
	_, err := d.append(ctx, map[string]interface{}{"op": blocksOpPut, "value": doc})
	return err
}

// Inc applies a counter delta.
func (d *MemDatabase) Inc(ctx context.Context, n int64) error {
	op := blocksOpCounter
	if n < 0 {
		op = blocksOpDec
		n = -n
	}
	_, err := d.append(ctx, map[string]interface{}{"op": op, "value": n})
	return err
}

const (
	blocksOpAdd     = "ADD"
	blocksOpPut     = "PUT"
	blocksOpDel     = "DEL"
	blocksOpCounter = "COUNTER"
	blocksOpDec     = "DEC"
)

// All materializes the kind-dependent projection of the log, replaying
// entries in clock order.
func (d *MemDatabase) All(ctx context.Context) (interface{}, error) {
	d.mu.Lock()
	entries := append([]entryRecord(nil), d.entries...)
	d.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].clock < entries[j].clock })

	switch d.kind {
	case "eventlog":
		out := make([]interface{}, 0, len(entries))
		for _, e := range entries {
			m, _ := e.payload.(map[string]interface{})
			out = append(out, m["value"])
		}
		return out, nil
	case "keyvalue":
		out := make(map[string]interface{})
		for _, e := range entries {
			m, _ := e.payload.(map[string]interface{})
			op, _ := m["op"].(string)
			key, _ := m["key"].(string)
			switch op {
			case blocksOpPut:
				out[key] = m["value"]
			case blocksOpDel:
				delete(out, key)
			}
		}
		return out, nil
	case "documents":
		out := make(map[string]map[string]interface{})
		for _, e := range entries {
			m, _ := e.payload.(map[string]interface{})
			op, _ := m["op"].(string)
			switch op {
			case blocksOpPut:
				v, _ := m["value"].(map[string]interface{})
				if id, ok := v["_id"].(string); ok {
					out[id] = v
				}
			case blocksOpDel:
				if key, ok := m["key"].(string); ok {
					delete(out, key)
				}
			}
		}
		return out, nil
	case "counter":
		var total int64
		for _, e := range entries {
			m, _ := e.payload.(map[string]interface{})
			op, _ := m["op"].(string)
			v, _ := m["value"].(int64)
			switch op {
			case blocksOpCounter:
				total += v
			case blocksOpDec:
				total -= v
			}
		}
		return total, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", d.kind)
	}
}
