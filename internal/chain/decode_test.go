package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func addrTopic(addr string) common.Hash {
	return common.BytesToHash(common.HexToAddress(addr).Bytes())
}

func uintTopic(n int64) common.Hash {
	return common.BigToHash(big.NewInt(n))
}

// abiString encodes a single dynamic string argument.
func abiString(s string) []byte {
	data := make([]byte, 64)
	data[31] = 0x20 // offset
	big.NewInt(int64(len(s))).FillBytes(data[32:64])
	padded := len(s)
	if rem := padded % 32; rem != 0 {
		padded += 32 - rem
	}
	body := make([]byte, padded)
	copy(body, s)
	return append(data, body...)
}

func TestDecodeRegistered(t *testing.T) {
	log := &types.Log{
		Topics: []common.Hash{
			RegisteredTopic,
			uintTopic(42),
			addrTopic("0x1111111111111111111111111111111111111111"),
		},
		Data:        abiString("ipfs://QmAgentCard"),
		BlockNumber: 500,
		TxHash:      common.HexToHash("0xabc"),
		Index:       3,
	}

	ev, err := DecodeRegistered(84532, log, 1700000000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.AgentID != 42 {
		t.Errorf("agentID = %d", ev.AgentID)
	}
	if ev.AgentURI != "ipfs://QmAgentCard" {
		t.Errorf("agentURI = %q", ev.AgentURI)
	}
	if ev.Owner != common.HexToAddress("0x1111111111111111111111111111111111111111").Hex() {
		t.Errorf("owner = %q", ev.Owner)
	}
	if ev.BlockNumber != 500 || ev.LogIndex != 3 || ev.Timestamp != 1700000000 {
		t.Errorf("meta = %+v", ev.EventMeta)
	}
}

func TestDecodeRegisteredWrongTopic(t *testing.T) {
	log := &types.Log{Topics: []common.Hash{TransferTopic}}
	if _, err := DecodeRegistered(1, log, 0); err == nil {
		t.Error("expected error for wrong topic0")
	}
}

func TestDecodeOwnershipTransfer(t *testing.T) {
	log := &types.Log{
		Topics: []common.Hash{
			TransferTopic,
			addrTopic("0x2222222222222222222222222222222222222222"),
			addrTopic("0x3333333333333333333333333333333333333333"),
			uintTopic(7),
		},
		BlockNumber: 600,
		TxHash:      common.HexToHash("0xdef"),
	}

	ev, err := DecodeOwnershipTransfer(1, log, 1000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.AgentID != 7 {
		t.Errorf("agentID = %d", ev.AgentID)
	}
	if ev.From != common.HexToAddress("0x2222222222222222222222222222222222222222").Hex() {
		t.Errorf("from = %q", ev.From)
	}
}

func TestDecodeOwnershipTransferSkipsMint(t *testing.T) {
	log := &types.Log{
		Topics: []common.Hash{
			TransferTopic,
			{}, // zero address: mint
			addrTopic("0x3333333333333333333333333333333333333333"),
			uintTopic(7),
		},
	}
	ev, err := DecodeOwnershipTransfer(1, log, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev != nil {
		t.Error("mints should decode to nil")
	}
}

func TestDecodeOwnershipTransferRejectsERC20Shape(t *testing.T) {
	log := &types.Log{
		Topics: []common.Hash{
			TransferTopic,
			addrTopic("0x2222222222222222222222222222222222222222"),
			addrTopic("0x3333333333333333333333333333333333333333"),
		},
	}
	if _, err := DecodeOwnershipTransfer(1, log, 0); err == nil {
		t.Error("3-topic transfer is ERC-20, must not decode as ownership")
	}
}

func TestDecodeNewFeedback(t *testing.T) {
	data := make([]byte, 64)
	big.NewInt(85).FillBytes(data[:32])
	copy(data[32:], []byte("speed")) // bytes32 tag, left-aligned

	log := &types.Log{
		Topics: []common.Hash{
			NewFeedbackTopic,
			uintTopic(42),
			addrTopic("0x4444444444444444444444444444444444444444"),
		},
		Data: data,
	}

	ev, err := DecodeNewFeedback(84532, log, 2000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.AgentID != 42 || ev.Value != 85 {
		t.Errorf("event = %+v", ev)
	}
	if ev.RawTag != "0x7370656564000000000000000000000000000000000000000000000000000000" {
		t.Errorf("rawTag = %q", ev.RawTag)
	}
}

func TestDecodeNewFeedbackNegativeValue(t *testing.T) {
	data := make([]byte, 64)
	for i := 0; i < 32; i++ {
		data[i] = 0xff // int256(-1)
	}
	log := &types.Log{
		Topics: []common.Hash{NewFeedbackTopic, uintTopic(1), addrTopic("0x44")},
		Data:   data,
	}

	ev, err := DecodeNewFeedback(1, log, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Value != -1 {
		t.Errorf("value = %d, want -1", ev.Value)
	}
}

func TestDecodeUSDCTransfer(t *testing.T) {
	data := make([]byte, 32)
	big.NewInt(2500000).FillBytes(data)

	log := &types.Log{
		Topics: []common.Hash{
			TransferTopic,
			addrTopic("0x5555555555555555555555555555555555555555"),
			addrTopic("0x6666666666666666666666666666666666666666"),
		},
		Data:        data,
		BlockNumber: 700,
	}

	ev, err := DecodeUSDCTransfer(8453, log, "0xFacilitator", 3000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Amount.Int64() != 2500000 {
		t.Errorf("amount = %s", ev.Amount)
	}
	if ev.TxFrom != "0xFacilitator" {
		t.Errorf("txFrom = %q", ev.TxFrom)
	}
	if ev.From != common.HexToAddress("0x5555555555555555555555555555555555555555").Hex() {
		t.Errorf("from = %q", ev.From)
	}
}

func TestDecodeUSDCTransferRejectsERC721Shape(t *testing.T) {
	log := &types.Log{
		Topics: []common.Hash{
			TransferTopic,
			addrTopic("0x55"),
			addrTopic("0x66"),
			uintTopic(1),
		},
	}
	if _, err := DecodeUSDCTransfer(1, log, "0xf", 0); err == nil {
		t.Error("4-topic transfer is ERC-721, must not decode as USDC")
	}
}
