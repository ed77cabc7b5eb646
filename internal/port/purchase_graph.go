package port

import "context"

type PurchaseGraph interface {
	// CoPurchased returns at most limit product names bought by users who
	// also bought one of names, excluding names, most frequent first
	CoPurchased(ctx context.Context, names []string, limit int) ([]string, error)
}
