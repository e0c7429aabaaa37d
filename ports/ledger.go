package ports

import "context"

// TransactionStatus describes a transaction the ledger has seen.
type TransactionStatus struct {
	Landed    bool
	Succeeded bool
}

// LedgerClient is the read-only view of the ledger node used by the poller.
type LedgerClient interface {
	// GetTransaction fetches the status of a transaction at the given
	// commitment level. A nil status with a nil error means the transaction
	// is not yet visible.
	GetTransaction(ctx context.Context, id, commitment string) (*TransactionStatus, error)
}
