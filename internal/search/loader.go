package search

import (
	"context"

	"github.com/Aman-CERP/kbpulse/internal/content"
)

// StoreBuilder returns a BuildFunc that loads published entries from store
// and builds a dataset from them.
func StoreBuilder(store content.Store, opts BuildOptions) BuildFunc {
	return func(ctx context.Context) (*Dataset, error) {
		entries, err := store.Entries(ctx, false)
		if err != nil {
			return nil, err
		}
		return Build(entries, opts), nil
	}
}
