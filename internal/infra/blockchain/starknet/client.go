package starknet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/starkstream/internal/chainstream"
	"github.com/gabapcia/starkstream/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/starkstream/internal/txstream"
)

// includeMethods maps an include mode to the Starknet RPC method that fetches
// blocks in that shape.
var includeMethods = map[chainstream.IncludeMode]string{
	chainstream.IncludeHeader:       "starknet_getBlockWithTxHashes",
	chainstream.IncludeTransactions: "starknet_getBlockWithTxs",
	chainstream.IncludeReceipts:     "starknet_getBlockWithReceipts",
}

// client implements the chainstream.Blockchain and txstream transaction
// fetcher contracts for Starknet nodes over a JSON-RPC connection.
type client struct {
	conn jsonrpc.Client // Underlying JSON-RPC client used to interact with the Starknet node
}

// Compile-time assertions that client satisfies the consumed contracts.
var (
	_ chainstream.Blockchain      = (*client)(nil)
	_ txstream.TransactionFetcher = (*client)(nil)
)

// NewClient creates a new Starknet chain client using the provided JSON-RPC
// connection.
func NewClient(conn jsonrpc.Client) *client {
	return &client{
		conn: conn,
	}
}

// LatestBlockNumber fetches the current chain head number via
// starknet_blockNumber.
func (c *client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	data, err := c.conn.Fetch(ctx, "starknet_blockNumber")
	if err != nil {
		return 0, err
	}

	var blockNumber uint64
	return blockNumber, json.Unmarshal(data, &blockNumber)
}

// BlockByNumber retrieves the block at the given height, using the RPC method
// matching the include mode.
func (c *client) BlockByNumber(ctx context.Context, number uint64, include chainstream.IncludeMode) (chainstream.Block, error) {
	method, ok := includeMethods[include]
	if !ok {
		return chainstream.Block{}, fmt.Errorf("unknown include mode %q", include)
	}

	data, err := c.conn.Fetch(ctx, method, map[string]any{"block_number": number})
	if err != nil {
		return chainstream.Block{}, err
	}

	var block blockResponse
	if err := json.Unmarshal(data, &block); err != nil {
		return chainstream.Block{}, err
	}

	if err := block.decodeTransactions(include); err != nil {
		return chainstream.Block{}, err
	}

	return block.toBlock(), nil
}

// TransactionByHash retrieves a transaction via starknet_getTransactionByHash.
func (c *client) TransactionByHash(ctx context.Context, hash string) (chainstream.Transaction, error) {
	data, err := c.conn.Fetch(ctx, "starknet_getTransactionByHash", hash)
	if err != nil {
		return chainstream.Transaction{}, err
	}

	var tx transactionResponse
	if err := json.Unmarshal(data, &tx); err != nil {
		return chainstream.Transaction{}, err
	}

	// starknet_getTransactionByHash omits the hash from the payload since the
	// caller already knows it.
	transaction := tx.toTransaction()
	if transaction.Hash == "" {
		transaction.Hash = hash
	}

	return transaction, nil
}
