package logdb

import (
	"context"

	blocks "github.com/ipfs/go-block-format"
	boxobs "github.com/ipfs/boxo/blockstore"
	cid "github.com/ipfs/go-cid"
)

// BoxoBlockstore adapts a boxo/blockstore.Blockstore to the BlockStore
// contract the core expects from a log-DB runtime.
type BoxoBlockstore struct {
	bs boxobs.Blockstore
}

// NewBoxoBlockstore wraps bs.
func NewBoxoBlockstore(bs boxobs.Blockstore) *BoxoBlockstore {
	return &BoxoBlockstore{bs: bs}
}

// Get implements BlockStore.
func (b *BoxoBlockstore) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	blk, err := b.bs.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	return blk.RawData(), nil
}

// Put implements BlockStore.
func (b *BoxoBlockstore) Put(ctx context.Context, c cid.Cid, data []byte) error {
	blk, err := blocks.NewBlockWithCid(data, c)
	if err != nil {
		return err
	}
	return b.bs.Put(ctx, blk)
}

// Has implements BlockStore.
func (b *BoxoBlockstore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	return b.bs.Has(ctx, c)
}

// All implements BlockStore.
func (b *BoxoBlockstore) All(ctx context.Context) (<-chan cid.Cid, error) {
	return b.bs.AllKeysChan(ctx)
}

var _ BlockStore = (*BoxoBlockstore)(nil)
