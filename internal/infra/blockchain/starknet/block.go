// Package starknet implements the chainstream and txstream chain client
// contracts for Starknet nodes, over JSON-RPC for polling and WebSocket
// subscriptions for push mode.
package starknet

import (
	"encoding/json"

	"github.com/gabapcia/starkstream/internal/chainstream"
	"github.com/gabapcia/starkstream/internal/pkg/types"
)

type (
	// transactionResponse represents a raw transaction object returned by the
	// Starknet JSON-RPC API. Fields not shared by every transaction type are
	// empty for the types that lack them.
	transactionResponse struct {
		TransactionHash string    `json:"transaction_hash"`
		Type            string    `json:"type"`
		SenderAddress   string    `json:"sender_address"`
		Nonce           types.Hex `json:"nonce"`
		MaxFee          types.Hex `json:"max_fee"`
		Version         string    `json:"version"`
	}

	// receiptResponse represents a raw transaction receipt returned by the
	// Starknet JSON-RPC API.
	receiptResponse struct {
		TransactionHash string `json:"transaction_hash"`
		ActualFee       struct {
			Amount types.Hex `json:"amount"`
			Unit   string    `json:"unit"`
		} `json:"actual_fee"`
		ExecutionStatus string `json:"execution_status"`
		FinalityStatus  string `json:"finality_status"`
	}

	// transactionWithReceiptResponse is one entry of a
	// starknet_getBlockWithReceipts result.
	transactionWithReceiptResponse struct {
		Transaction transactionResponse `json:"transaction"`
		Receipt     receiptResponse     `json:"receipt"`
	}

	// blockResponse represents the block shapes returned by
	// starknet_getBlockWithTxHashes, starknet_getBlockWithTxs and
	// starknet_getBlockWithReceipts. The "transactions" array's element shape
	// depends on the method, so it is kept raw and decoded per include mode
	// by the client.
	blockResponse struct {
		Status           string          `json:"status"`
		BlockHash        string          `json:"block_hash"`
		ParentHash       string          `json:"parent_hash"`
		BlockNumber      uint64          `json:"block_number"`
		NewRoot          string          `json:"new_root"`
		Timestamp        uint64          `json:"timestamp"`
		SequencerAddress string          `json:"sequencer_address"`
		TransactionsRaw  json.RawMessage `json:"transactions"`

		TransactionHashes []string                         `json:"-"`
		Transactions      []transactionResponse            `json:"-"`
		WithReceipts      []transactionWithReceiptResponse `json:"-"`
	}

	// headerNotification is the payload of a starknet_subscriptionNewHeads
	// notification.
	headerNotification struct {
		BlockHash   string `json:"block_hash"`
		ParentHash  string `json:"parent_hash"`
		BlockNumber uint64 `json:"block_number"`
		Timestamp   uint64 `json:"timestamp"`
	}

	// reorgNotification is the payload of a starknet_subscriptionReorg
	// notification: every block in [starting, ending] was replaced.
	reorgNotification struct {
		StartingBlockHash   string `json:"starting_block_hash"`
		StartingBlockNumber uint64 `json:"starting_block_number"`
		EndingBlockHash     string `json:"ending_block_hash"`
		EndingBlockNumber   uint64 `json:"ending_block_number"`
	}
)

// decodeTransactions unmarshals the raw "transactions" array into the shape
// matching the include mode the block was fetched with.
func (b *blockResponse) decodeTransactions(include chainstream.IncludeMode) error {
	if len(b.TransactionsRaw) == 0 {
		return nil
	}

	switch include {
	case chainstream.IncludeTransactions:
		return json.Unmarshal(b.TransactionsRaw, &b.Transactions)
	case chainstream.IncludeReceipts:
		return json.Unmarshal(b.TransactionsRaw, &b.WithReceipts)
	default:
		return json.Unmarshal(b.TransactionsRaw, &b.TransactionHashes)
	}
}

// toTransaction converts a transactionResponse to a chainstream.Transaction.
func (t transactionResponse) toTransaction() chainstream.Transaction {
	return chainstream.Transaction{
		Hash:    t.TransactionHash,
		Type:    t.Type,
		Sender:  t.SenderAddress,
		Nonce:   t.Nonce,
		MaxFee:  t.MaxFee,
		Version: t.Version,
	}
}

// toReceipt converts a receiptResponse to a chainstream.Receipt.
func (r receiptResponse) toReceipt() chainstream.Receipt {
	return chainstream.Receipt{
		TransactionHash: r.TransactionHash,
		ActualFee:       r.ActualFee.Amount,
		ExecutionStatus: r.ExecutionStatus,
		FinalityStatus:  r.FinalityStatus,
	}
}

// toBlock converts a blockResponse to a chainstream.Block, carrying whichever
// payload shape the RPC method populated.
func (b blockResponse) toBlock() chainstream.Block {
	block := chainstream.Block{
		Hash:              b.BlockHash,
		ParentHash:        b.ParentHash,
		Number:            b.BlockNumber,
		Timestamp:         b.Timestamp,
		TransactionHashes: b.TransactionHashes,
	}

	if len(b.Transactions) > 0 {
		block.Transactions = make([]chainstream.Transaction, len(b.Transactions))
		for i, t := range b.Transactions {
			block.Transactions[i] = t.toTransaction()
		}
	}

	if len(b.WithReceipts) > 0 {
		block.Transactions = make([]chainstream.Transaction, len(b.WithReceipts))
		block.Receipts = make([]chainstream.Receipt, len(b.WithReceipts))
		for i, tr := range b.WithReceipts {
			block.Transactions[i] = tr.Transaction.toTransaction()
			block.Receipts[i] = tr.Receipt.toReceipt()
		}
	}

	return block
}

// toLightBlock converts a header notification to the light identity consumed
// by the watch engine.
func (h headerNotification) toLightBlock() chainstream.LightBlock {
	return chainstream.LightBlock{
		Hash:       h.BlockHash,
		ParentHash: h.ParentHash,
		Number:     h.BlockNumber,
	}
}

// toReorgNotice converts a reorg notification to the engine's notice shape.
func (r reorgNotification) toReorgNotice() chainstream.ReorgNotice {
	return chainstream.ReorgNotice{
		StartingBlock: chainstream.LightBlock{
			Hash:   r.StartingBlockHash,
			Number: r.StartingBlockNumber,
		},
		EndingBlock: chainstream.LightBlock{
			Hash:   r.EndingBlockHash,
			Number: r.EndingBlockNumber,
		},
	}
}
