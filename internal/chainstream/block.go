package chainstream

import (
	"context"

	"github.com/gabapcia/starkstream/internal/pkg/types"
)

// IncludeMode selects how much of a block's payload is fetched alongside its
// header. The chain client exposes one fetch method per mode, but every mode
// shares the same light identity (hash, number, parent hash) used for
// continuity and ancestor checks.
type IncludeMode string

const (
	// IncludeHeader fetches the block header plus the hashes of its transactions.
	IncludeHeader IncludeMode = "header"

	// IncludeTransactions fetches the block header plus full transaction objects.
	IncludeTransactions IncludeMode = "transactions"

	// IncludeReceipts fetches the block header plus transactions and their receipts.
	IncludeReceipts IncludeMode = "receipts"
)

// LightBlock is the minimal chain identity of a block: enough to test
// continuity against a tracked window and to locate reorg ancestors without
// carrying the full payload.
type LightBlock struct {
	Hash       string // Unique block hash
	ParentHash string // Hash of the parent block
	Number     uint64 // Block height
}

// Transaction represents a transaction as returned by the chain client.
// Fields beyond Hash may be empty depending on the transaction type.
type Transaction struct {
	Hash    string    // Unique transaction hash identifier
	Type    string    // Transaction type (e.g., "INVOKE", "DECLARE", "DEPLOY_ACCOUNT", "L1_HANDLER")
	Sender  string    // Sender address ("" for types without one)
	Nonce   types.Hex // Account nonce
	MaxFee  types.Hex // Maximum fee the sender is willing to pay
	Version string    // Transaction version
}

// Receipt represents the execution result of a transaction.
type Receipt struct {
	TransactionHash string    // Hash of the transaction this receipt belongs to
	ActualFee       types.Hex // Fee actually charged
	ExecutionStatus string    // e.g., "SUCCEEDED", "REVERTED"
	FinalityStatus  string    // e.g., "ACCEPTED_ON_L2", "ACCEPTED_ON_L1"
}

// Block represents a blockchain block. Which of the payload slices are
// populated depends on the IncludeMode used to fetch it: TransactionHashes
// for IncludeHeader, Transactions for IncludeTransactions, and both
// Transactions and Receipts for IncludeReceipts.
type Block struct {
	Hash              string        // Unique block hash
	ParentHash        string        // Hash of the parent block
	Number            uint64        // Block height
	Timestamp         uint64        // Unix timestamp the block was produced at
	TransactionHashes []string      // Hashes of the block's transactions (IncludeHeader)
	Transactions      []Transaction // Full transactions (IncludeTransactions, IncludeReceipts)
	Receipts          []Receipt     // Transaction receipts (IncludeReceipts)
}

// Light returns the block's minimal chain identity.
func (b Block) Light() LightBlock {
	return LightBlock{
		Hash:       b.Hash,
		ParentHash: b.ParentHash,
		Number:     b.Number,
	}
}

// BlocksEvent is a contiguous batch of newly observed blocks, ordered
// ascending by number. If Err is set, the event is terminal: no blocks are
// carried and the stream's channel is closed right after it is delivered.
type BlocksEvent struct {
	Blocks []Block // Blocks in ascending number order
	// HighestBlock is the highest block number included in this event. It is
	// not the live chain head: during a backfill it is simply the last number
	// of the chunk.
	HighestBlock uint64
	Err          error // Terminal stream error, nil on success
}

// Reorg describes a resolved fork: the tracked blocks that are no longer
// canonical, the blocks of the replacing segment, and the common ancestor
// both segments descend from.
type Reorg struct {
	// Removed lists the previously tracked blocks that were replaced,
	// newest-first, so callers can unwind state in that order.
	Removed []LightBlock

	// Added lists the replacing blocks, oldest-first, so callers can apply
	// state in that order.
	Added []Block

	// CommonAncestor is the most recent block shared by both segments. It is
	// nil when the entire tracked window was replaced (push-mode reorg
	// notices may report a range starting at the window's oldest entry).
	CommonAncestor *LightBlock
}

// WatchEvent is a single event emitted by Watch. Exactly one of Blocks,
// Reorg, or Err is set. After an event carrying Err the channel is closed.
type WatchEvent struct {
	Blocks    []Block // Newly appended canonical blocks, ascending by number
	Reorg     *Reorg  // Fork resolution, when continuity was broken
	ChainHead uint64  // Latest chain head known when the event was produced
	Err       error   // Terminal stream error, nil otherwise
}

// Blockchain defines the chain client contract this engine requires. Retry
// and backoff policy belong to the transport behind this interface; the
// engine propagates failures as terminal stream errors.
type Blockchain interface {
	// LatestBlockNumber returns the current chain head number.
	LatestBlockNumber(ctx context.Context) (uint64, error)

	// BlockByNumber retrieves the block at the given height, populated
	// according to the include mode.
	BlockByNumber(ctx context.Context, number uint64, include IncludeMode) (Block, error)
}

// ReorgNotice is an explicit reorganization notification delivered by a
// push-mode subscription: every block from StartingBlock's number upward was
// replaced, and EndingBlock is the tip of the replacing segment.
type ReorgNotice struct {
	StartingBlock LightBlock // First replaced block (lowest number)
	EndingBlock   LightBlock // Tip of the replacing segment (highest number)
}

// HeadEvent is one notification from a push-mode head subscription. Exactly
// one of Head, Reorg, or Err is set.
type HeadEvent struct {
	Head  *LightBlock  // A new chain head was announced
	Reorg *ReorgNotice // The node reported an explicit reorganization
	Err   error        // The subscription failed; the channel closes after this
}

// HeadSource supplies a push-based subscription for new chain heads and reorg
// notices. The returned channel is closed when ctx is canceled; the
// implementation owns the underlying connection and must unsubscribe and
// disconnect on every exit path.
type HeadSource interface {
	SubscribeNewHeads(ctx context.Context) (<-chan HeadEvent, error)
}
