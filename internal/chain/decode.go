// Package chain decodes raw EVM logs into ingest events.
//
// Decoding is pure: no RPC calls, no state. The log delivery layer
// (subscriptions, reorg handling, block timestamps) supplies raw logs
// plus the block timestamp and transaction sender it already has.
package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mbd888/agentscan/internal/ingest"
)

// Event signature topics, computed once at init.
var (
	// Registered(uint256 indexed agentId, string agentURI, address indexed owner)
	RegisteredTopic = crypto.Keccak256Hash([]byte("Registered(uint256,string,address)"))

	// NewFeedback(uint256 indexed agentId, address indexed client, int256 value, bytes32 tag)
	NewFeedbackTopic = crypto.Keccak256Hash([]byte("NewFeedback(uint256,address,int256,bytes32)"))

	// Transfer(address,address,uint256) is shared by ERC-20 and
	// ERC-721; the indexed tokenId gives ERC-721 a fourth topic.
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

var (
	ErrWrongTopic   = errors.New("chain: log has unexpected topic0")
	ErrMalformedLog = errors.New("chain: malformed log")
)

// Meta extracts the shared event position from a log. The block
// timestamp is not part of the log and must come from the header.
func Meta(chainID int64, log *types.Log, timestamp int64) ingest.EventMeta {
	return ingest.EventMeta{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		Timestamp:   timestamp,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    log.Index,
	}
}

// DecodeRegistered decodes an identity-registry Registered log.
func DecodeRegistered(chainID int64, log *types.Log, timestamp int64) (*ingest.RegisteredEvent, error) {
	if len(log.Topics) == 0 || log.Topics[0] != RegisteredTopic {
		return nil, ErrWrongTopic
	}
	if len(log.Topics) != 3 {
		return nil, fmt.Errorf("%w: registered log has %d topics", ErrMalformedLog, len(log.Topics))
	}

	uri, err := decodeABIString(log.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLog, err)
	}

	return &ingest.RegisteredEvent{
		EventMeta: Meta(chainID, log, timestamp),
		AgentID:   new(big.Int).SetBytes(log.Topics[1].Bytes()).Uint64(),
		Owner:     topicAddress(log.Topics[2]),
		AgentURI:  uri,
	}, nil
}

// DecodeOwnershipTransfer decodes an ERC-721 Transfer on the identity
// registry, which moves agent ownership. Mints (from the zero
// address) are skipped; the Registered event already covers creation.
func DecodeOwnershipTransfer(chainID int64, log *types.Log, timestamp int64) (*ingest.OwnershipTransferEvent, error) {
	if len(log.Topics) == 0 || log.Topics[0] != TransferTopic {
		return nil, ErrWrongTopic
	}
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("%w: erc721 transfer needs 4 topics, got %d", ErrMalformedLog, len(log.Topics))
	}

	from := topicAddress(log.Topics[1])
	if log.Topics[1] == (common.Hash{}) {
		return nil, nil // mint
	}

	return &ingest.OwnershipTransferEvent{
		EventMeta: Meta(chainID, log, timestamp),
		AgentID:   new(big.Int).SetBytes(log.Topics[3].Bytes()).Uint64(),
		From:      from,
		To:        topicAddress(log.Topics[2]),
	}, nil
}

// DecodeNewFeedback decodes a reputation-registry NewFeedback log.
// Data is the non-indexed tail: int256 value then bytes32 tag.
func DecodeNewFeedback(chainID int64, log *types.Log, timestamp int64) (*ingest.FeedbackEvent, error) {
	if len(log.Topics) == 0 || log.Topics[0] != NewFeedbackTopic {
		return nil, ErrWrongTopic
	}
	if len(log.Topics) != 3 || len(log.Data) < 64 {
		return nil, fmt.Errorf("%w: feedback log topics=%d data=%d", ErrMalformedLog, len(log.Topics), len(log.Data))
	}

	value := new(big.Int).SetBytes(log.Data[:32])
	// int256 two's complement
	if log.Data[0]&0x80 != 0 {
		value.Sub(value, new(big.Int).Lsh(big.NewInt(1), 256))
	}

	return &ingest.FeedbackEvent{
		EventMeta: Meta(chainID, log, timestamp),
		AgentID:   new(big.Int).SetBytes(log.Topics[1].Bytes()).Uint64(),
		Giver:     topicAddress(log.Topics[2]),
		Value:     value.Int64(),
		RawTag:    common.BytesToHash(log.Data[32:64]).Hex(),
	}, nil
}

// DecodeUSDCTransfer decodes an ERC-20 Transfer log. txFrom is the
// transaction sender, needed downstream for facilitator matching.
func DecodeUSDCTransfer(chainID int64, log *types.Log, txFrom string, timestamp int64) (*ingest.TransferEvent, error) {
	if len(log.Topics) == 0 || log.Topics[0] != TransferTopic {
		return nil, ErrWrongTopic
	}
	if len(log.Topics) != 3 {
		return nil, fmt.Errorf("%w: erc20 transfer needs 3 topics, got %d", ErrMalformedLog, len(log.Topics))
	}
	if len(log.Data) < 32 {
		return nil, fmt.Errorf("%w: erc20 transfer data too short", ErrMalformedLog)
	}

	return &ingest.TransferEvent{
		EventMeta: Meta(chainID, log, timestamp),
		TxFrom:    txFrom,
		From:      topicAddress(log.Topics[1]),
		To:        topicAddress(log.Topics[2]),
		Amount:    new(big.Int).SetBytes(log.Data[:32]),
	}, nil
}

// topicAddress extracts the address packed into an indexed topic.
func topicAddress(h common.Hash) string {
	return common.BytesToAddress(h.Bytes()).Hex()
}

// decodeABIString unpacks a single dynamic string argument: a 32-byte
// offset, then a 32-byte length, then the bytes padded to 32.
func decodeABIString(data []byte) (string, error) {
	if len(data) < 64 {
		return "", errors.New("string data too short")
	}
	offset := new(big.Int).SetBytes(data[:32])
	if !offset.IsInt64() || offset.Int64()+32 > int64(len(data)) {
		return "", errors.New("string offset out of range")
	}
	o := offset.Int64()
	length := new(big.Int).SetBytes(data[o : o+32])
	if !length.IsInt64() || o+32+length.Int64() > int64(len(data)) {
		return "", errors.New("string length out of range")
	}
	return string(data[o+32 : o+32+length.Int64()]), nil
}
