// Package watcher polls a chain for registry and USDC logs and feeds
// them through the ingestion pipeline.
//
// The watcher is deliberately simple: it filters logs for the three
// watched contracts in block ranges and relies on the store's keyed
// inserts for replay safety, so re-scanning a range after a crash or a
// shallow reorg is harmless. Deep reorg recovery means restarting from
// an earlier START_BLOCK.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/agentscan/internal/chain"
	"github.com/mbd888/agentscan/internal/facilitators"
	"github.com/mbd888/agentscan/internal/ingest"
	"github.com/mbd888/agentscan/internal/retry"
)

// Sink receives decoded events. *ingest.Pipeline satisfies it.
type Sink interface {
	HandleRegistered(ctx context.Context, ev *ingest.RegisteredEvent) error
	HandleOwnershipTransfer(ctx context.Context, ev *ingest.OwnershipTransferEvent) error
	HandleFeedback(ctx context.Context, ev *ingest.FeedbackEvent) error
	HandleTransfer(ctx context.Context, ev *ingest.TransferEvent) error
}

// Config for the log watcher
type Config struct {
	RPCURL             string
	ChainID            int64
	IdentityRegistry   common.Address
	ReputationRegistry common.Address
	USDCContract       common.Address
	PollInterval       time.Duration
	StartBlock         uint64 // 0 = latest
}

// RPC retry policy for transient provider failures.
const (
	rpcAttempts  = 3
	rpcBaseDelay = 500 * time.Millisecond

	// Cap on blocks per FilterLogs call; most providers reject
	// unbounded ranges.
	maxBlockRange = 2000
)

// Watcher polls for logs and dispatches them to the sink
type Watcher struct {
	client *ethclient.Client
	config Config
	sink   Sink
	facs   *facilitators.Registry
	logger *slog.Logger

	// Overridable in tests; defaults to an RPC lookup.
	senderFn func(ctx context.Context, vLog *types.Log) (string, error)

	lastBlock uint64

	stop chan struct{}
	done chan struct{}
}

// New connects to the RPC endpoint and prepares a watcher. The
// facilitator registry pre-filters USDC transfers so the bulk of
// unrelated token traffic never reaches the pipeline.
func New(cfg Config, sink Sink, facs *facilitators.Registry, logger *slog.Logger) (*Watcher, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	w := &Watcher{
		client: client,
		config: cfg,
		sink:   sink,
		facs:   facs,
		logger: logger.With("chain_id", cfg.ChainID),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	w.senderFn = w.txSender
	return w, nil
}

// Start begins polling for logs
func (w *Watcher) Start(ctx context.Context) error {
	if w.config.StartBlock == 0 {
		block, err := w.blockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to get block number: %w", err)
		}
		w.lastBlock = block
	} else {
		w.lastBlock = w.config.StartBlock - 1
	}

	w.logger.Info("log watcher started",
		"identity_registry", w.config.IdentityRegistry.Hex(),
		"reputation_registry", w.config.ReputationRegistry.Hex(),
		"usdc", w.config.USDCContract.Hex(),
		"from_block", w.lastBlock+1,
	)

	go w.pollLoop(ctx)
	return nil
}

// Stop stops the watcher and waits for the poll loop to exit.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				w.logger.Error("poll failed", "error", err)
			}
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	currentBlock, err := w.blockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}

	if currentBlock <= w.lastBlock {
		return nil
	}

	from := w.lastBlock + 1
	to := currentBlock
	if to-from >= maxBlockRange {
		to = from + maxBlockRange - 1
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{
			w.config.IdentityRegistry,
			w.config.ReputationRegistry,
			w.config.USDCContract,
		},
		Topics: [][]common.Hash{
			{chain.RegisteredTopic, chain.NewFeedbackTopic, chain.TransferTopic},
		},
	}

	logs, err := w.filterLogs(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to filter logs: %w", err)
	}

	timestamps := make(map[uint64]int64)
	for i := range logs {
		if err := w.processLog(ctx, &logs[i], timestamps); err != nil {
			w.logger.Error("failed to process log",
				"tx", logs[i].TxHash.Hex(),
				"log_index", logs[i].Index,
				"error", err,
			)
			// Leave lastBlock untouched so the range is re-scanned.
			// Already-ingested logs in it are deduplicated downstream.
			return err
		}
	}

	w.lastBlock = to
	return nil
}

func (w *Watcher) processLog(ctx context.Context, vLog *types.Log, timestamps map[uint64]int64) error {
	ts, err := w.blockTimestamp(ctx, vLog.BlockNumber, timestamps)
	if err != nil {
		return err
	}

	switch vLog.Topics[0] {
	case chain.RegisteredTopic:
		ev, err := chain.DecodeRegistered(w.config.ChainID, vLog, ts)
		if err != nil {
			return err
		}
		return w.sink.HandleRegistered(ctx, ev)

	case chain.NewFeedbackTopic:
		ev, err := chain.DecodeNewFeedback(w.config.ChainID, vLog, ts)
		if err != nil {
			return err
		}
		return w.sink.HandleFeedback(ctx, ev)

	case chain.TransferTopic:
		// Transfer(address,address,uint256) is shared: the identity
		// registry emits it as ERC-721 ownership moves, USDC as ERC-20
		// payments.
		if vLog.Address == w.config.IdentityRegistry {
			ev, err := chain.DecodeOwnershipTransfer(w.config.ChainID, vLog, ts)
			if err != nil {
				return err
			}
			if ev == nil { // mint
				return nil
			}
			return w.sink.HandleOwnershipTransfer(ctx, ev)
		}

		txFrom, err := w.senderFn(ctx, vLog)
		if err != nil {
			return err
		}
		if !w.facs.Contains(txFrom) {
			return nil
		}
		ev, err := chain.DecodeUSDCTransfer(w.config.ChainID, vLog, txFrom, ts)
		if err != nil {
			return err
		}
		return w.sink.HandleTransfer(ctx, ev)
	}

	return nil
}

// blockTimestamp fetches a header timestamp, cached per poll batch.
func (w *Watcher) blockTimestamp(ctx context.Context, blockNumber uint64, cache map[uint64]int64) (int64, error) {
	if ts, ok := cache[blockNumber]; ok {
		return ts, nil
	}

	var header *types.Header
	err := retry.Do(ctx, rpcAttempts, rpcBaseDelay, func() error {
		var err error
		header, err = w.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get header %d: %w", blockNumber, err)
	}

	ts := int64(header.Time)
	cache[blockNumber] = ts
	return ts, nil
}

// txSender recovers the transaction sender for a log. Facilitator
// matching happens on the sender, not the token-level from address.
func (w *Watcher) txSender(ctx context.Context, vLog *types.Log) (string, error) {
	var tx *types.Transaction
	err := retry.Do(ctx, rpcAttempts, rpcBaseDelay, func() error {
		var err error
		tx, _, err = w.client.TransactionByHash(ctx, vLog.TxHash)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to get tx %s: %w", vLog.TxHash.Hex(), err)
	}

	sender, err := w.client.TransactionSender(ctx, tx, vLog.BlockHash, vLog.TxIndex)
	if err != nil {
		return "", fmt.Errorf("failed to recover sender for %s: %w", vLog.TxHash.Hex(), err)
	}
	return strings.ToLower(sender.Hex()), nil
}

func (w *Watcher) blockNumber(ctx context.Context) (uint64, error) {
	var block uint64
	err := retry.Do(ctx, rpcAttempts, rpcBaseDelay, func() error {
		var err error
		block, err = w.client.BlockNumber(ctx)
		return err
	})
	return block, err
}

func (w *Watcher) filterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := retry.Do(ctx, rpcAttempts, rpcBaseDelay, func() error {
		var err error
		logs, err = w.client.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}
