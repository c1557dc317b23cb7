package policy

import (
	"context"
	"fmt"
)

// masterDeleteBlocked reports whether deleting a master stock item would
// orphan live stall inventory. A master (stallId null) is deletable only when
// every linked stall mirror has drained to quantity zero. Mirror deletes carry
// no such precondition, and admin bypasses the check entirely; both of those
// short-circuits live in the delete rule, not here.
func masterDeleteBlocked(ctx context.Context, loader Loader, masterID string) (bool, error) {
	mirrors, err := loader.LoadRelated(ctx, CollectionStockItems, masterID, RelationMirrors)
	if err != nil {
		return false, fmt.Errorf("failed to load stall mirrors for %s: %w", masterID, err)
	}
	for _, mirror := range mirrors {
		if mirror.GetNumber(FieldQuantity) > 0 {
			return true, nil
		}
	}
	return false, nil
}
