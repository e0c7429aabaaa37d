package sol

import (
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	memoProgram          = solana.MPK("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	computeBudgetProgram = solana.MPK("ComputeBudget111111111111111111111111111111")
)

// Compute-budget parameters of the versioned placeholder. Pinned on both
// sides: the client SDK builds its envelope with the same values, so the
// server can rebuild the identical message.
const (
	envelopeComputeUnitLimit uint32 = 200_000
	envelopeComputeUnitPrice uint64 = 1_000
)

// verifyTransaction checks the signature against the serialized message of a
// deterministically rebuilt legacy transaction: one memo instruction with the
// nonce as opaque data, the identity as fee payer and sole signer. The
// identity's own key bytes stand in for the recent blockhash; the envelope is
// never broadcast, only its signature matters, so no real blockhash is
// fetched. This quirk is load-bearing for wire compatibility.
func verifyTransaction(nonce, signature string, identity solana.PublicKey) bool {
	sig, ok := decodeSignature(signature)
	if !ok {
		return false
	}

	message, err := buildTransactionMessage(nonce, identity)
	if err != nil {
		return false
	}
	return identity.Verify(message, sig)
}

func buildTransactionMessage(nonce string, identity solana.PublicKey) ([]byte, error) {
	ix := solana.NewInstruction(
		memoProgram,
		solana.AccountMetaSlice{solana.NewAccountMeta(identity, true, true)},
		[]byte(nonce),
	)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		solana.Hash(identity),
		solana.TransactionPayer(identity),
	)
	if err != nil {
		return nil, err
	}
	return tx.Message.MarshalBinary()
}

// verifyVersioned deserializes the signature argument as a full versioned
// transaction, extracts its first signature, rebuilds the equivalent v0
// message (fixed compute-budget instructions plus a memo carrying the nonce,
// reusing the submitted envelope's recent blockhash) and verifies the
// extracted signature against the rebuilt bytes. Verifying against the
// reconstruction rather than the submitted bytes is what stops a wallet from
// smuggling extra instructions into the signed payload.
func verifyVersioned(nonce, signature string, identity solana.PublicKey) bool {
	raw, ok := decodeEnvelope(signature)
	if !ok {
		return false
	}

	submitted, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return false
	}
	if len(submitted.Signatures) == 0 {
		return false
	}
	sig := submitted.Signatures[0]

	message, err := BuildVersionedMessage(nonce, identity, submitted.Message.RecentBlockhash)
	if err != nil {
		return false
	}
	return identity.Verify(message, sig)
}

// BuildVersionedMessage serializes the placeholder v0 message the client is
// expected to have signed. Exported so the client SDK used in tests builds
// the exact same bytes.
func BuildVersionedMessage(nonce string, identity solana.PublicKey, blockhash solana.Hash) ([]byte, error) {
	ixs := []solana.Instruction{
		solana.NewInstruction(computeBudgetProgram, solana.AccountMetaSlice{}, setComputeUnitLimitData()),
		solana.NewInstruction(computeBudgetProgram, solana.AccountMetaSlice{}, setComputeUnitPriceData()),
		solana.NewInstruction(
			memoProgram,
			solana.AccountMetaSlice{solana.NewAccountMeta(identity, true, true)},
			[]byte(nonce),
		),
	}

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(identity))
	if err != nil {
		return nil, err
	}
	tx.Message.SetVersion(solana.MessageVersionV0)
	return tx.Message.MarshalBinary()
}

func setComputeUnitLimitData() []byte {
	data := make([]byte, 5)
	data[0] = 2 // SetComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:], envelopeComputeUnitLimit)
	return data
}

func setComputeUnitPriceData() []byte {
	data := make([]byte, 9)
	data[0] = 3 // SetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], envelopeComputeUnitPrice)
	return data
}
