// Package ledger adapts the Solana RPC client to the read-only view the
// poller needs: did a transaction land, and did it succeed.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/questland/heimdall/ports"
)

// SolanaLedger implements LedgerClient against a Solana RPC node.
type SolanaLedger struct {
	client *rpc.Client
}

var _ ports.LedgerClient = (*SolanaLedger)(nil)

// NewSolanaLedger creates a ledger client for the given RPC endpoint.
func NewSolanaLedger(endpoint string) *SolanaLedger {
	return &SolanaLedger{client: rpc.New(endpoint)}
}

// GetTransaction fetches a transaction's status at the given commitment
// level. A transaction the node has not seen yet is reported as nil, nil.
func (l *SolanaLedger) GetTransaction(ctx context.Context, id, commitment string) (*ports.TransactionStatus, error) {
	sig, err := solana.SignatureFromBase58(id)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction id %q: %w", id, err)
	}

	maxVersion := uint64(0)
	out, err := l.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     commitmentType(commitment),
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if out == nil {
		return nil, nil
	}

	status := &ports.TransactionStatus{Landed: true, Succeeded: true}
	if out.Meta != nil && out.Meta.Err != nil {
		status.Succeeded = false
	}
	return status, nil
}

func commitmentType(commitment string) rpc.CommitmentType {
	switch commitment {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}
