// Package archive stores receipt batches as backup artifacts in an object
// store. The archive is the source of truth for every derived view.
package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dvloznov/receipt-ledger/internal/logger"
	"github.com/dvloznov/receipt-ledger/internal/receipt"
	"github.com/dvloznov/receipt-ledger/internal/storage"
)

// ErrNotFound is returned when an artifact does not exist.
var ErrNotFound = storage.ErrNotFound

// Archive reads and writes backup artifacts.
type Archive struct {
	store storage.ObjectStore
	norm  *receipt.Normalizer
}

// New creates an Archive over store.
func New(store storage.ObjectStore, norm *receipt.Normalizer) *Archive {
	if norm == nil {
		norm = receipt.NewNormalizer(nil)
	}
	return &Archive{store: store, norm: norm}
}

// Save writes the batch under its backup id, replacing any artifact of the
// same name. Failures wrap receipt.ErrPersistFailed.
func (a *Archive) Save(ctx context.Context, b *receipt.Batch) error {
	if b.BackupID == "" {
		return fmt.Errorf("Archive.Save: %w: batch has no backup id", receipt.ErrPersistFailed)
	}
	data, err := receipt.Encode(b.Records)
	if err != nil {
		return fmt.Errorf("Archive.Save: %w: %w", receipt.ErrPersistFailed, err)
	}
	if err := a.store.Put(ctx, b.BackupID, data); err != nil {
		return fmt.Errorf("Archive.Save: %w: %w", receipt.ErrPersistFailed, err)
	}
	return nil
}

// Load reads one artifact back into a batch.
func (a *Archive) Load(ctx context.Context, name string) (*receipt.Batch, error) {
	data, err := a.store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("Archive.Load: %w", err)
	}
	b, err := a.norm.Decode(ctx, name, data)
	if err != nil {
		return nil, fmt.Errorf("Archive.Load: %q: %w", name, err)
	}
	return b, nil
}

// List returns the names of all backup artifacts in time order.
func (a *Archive) List(ctx context.Context) ([]string, error) {
	all, err := a.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("Archive.List: %w", err)
	}
	names := make([]string, 0, len(all))
	for _, name := range all {
		if receipt.IsBackupID(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadAll reads every artifact. Unreadable and empty artifacts are skipped
// and logged; only a failure to list the store is returned.
func (a *Archive) LoadAll(ctx context.Context) ([]*receipt.Batch, error) {
	log := logger.FromContext(ctx)

	names, err := a.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("Archive.LoadAll: %w", err)
	}

	batches := make([]*receipt.Batch, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("Archive.LoadAll: %w", err)
		}
		b, err := a.Load(ctx, name)
		if err != nil {
			log.Warn().Err(err).Str("backup_id", name).Msg("Skipping unreadable artifact")
			continue
		}
		if len(b.Records) == 0 {
			log.Debug().Str("backup_id", name).Msg("Skipping empty artifact")
			continue
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// Delete removes one artifact.
func (a *Archive) Delete(ctx context.Context, name string) error {
	if err := a.store.Delete(ctx, name); err != nil {
		return fmt.Errorf("Archive.Delete: %w", err)
	}
	return nil
}

// IsNotFound reports whether err means the artifact does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
