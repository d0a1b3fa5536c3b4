package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// blobKeyPrefix namespaces blob keys so the database can hold other data.
const blobKeyPrefix = "B/"

// Pebble keeps blobs as values in an embedded pebble database. Writes are
// synced before Put returns.
type Pebble struct {
	db *pebble.DB
}

func NewPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble at %q: %w", dir, err)
	}
	return &Pebble{db: db}, nil
}

func blobKey(name string) []byte {
	return []byte(blobKeyPrefix + name)
}

func (p *Pebble) Put(ctx context.Context, name string, data []byte) error {
	if !validName(name) {
		return fmt.Errorf("invalid blob name %q", name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.db.Set(blobKey(name), data, pebble.Sync); err != nil {
		return fmt.Errorf("setting %q: %w", name, err)
	}
	return nil
}

func (p *Pebble) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, closer, err := p.db.Get(blobKey(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %q: %w", name, err)
	}
	defer closer.Close()
	// val is only valid until closer is closed.
	data := make([]byte, len(val))
	copy(data, val)
	return data, nil
}

func (p *Pebble) List(ctx context.Context, prefix string) ([]string, error) {
	lower := blobKey(prefix)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(lower),
	})
	if err != nil {
		return nil, fmt.Errorf("iterating %q: %w", prefix, err)
	}
	defer iter.Close()
	var names []string
	for valid := iter.First(); valid; valid = iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		names = append(names, string(iter.Key()[len(blobKeyPrefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterating %q: %w", prefix, err)
	}
	return names, nil
}

func (p *Pebble) Delete(_ context.Context, name string) error {
	if err := p.db.Delete(blobKey(name), pebble.Sync); err != nil {
		return fmt.Errorf("deleting %q: %w", name, err)
	}
	return nil
}

func (p *Pebble) Close() error {
	return p.db.Close()
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
