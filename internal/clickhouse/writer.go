package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentinel-amm/sentinel/internal/bus"
)

// Table names written by the batch writer.
const (
	TableSwaps       = "swap_observations"
	TableSettlements = "auction_settlements"
	TableAlerts      = "mev_alerts"
)

// FlushHook intercepts a table flush; used in tests and for dry runs.
type FlushHook func(ctx context.Context, table string, rows [][]any) error

// BatchWriter batches swap observations, MEV alerts and auction settlements
// and flushes to ClickHouse when a table's buffer fills or on an interval.
// Persistence is best-effort history: errors are logged and counted, never
// surfaced to the core.
type BatchWriter struct {
	client        *Client
	database      string
	batchSize     int
	flushInterval time.Duration

	mu            sync.Mutex
	swapBuf       []bus.SwapObserved
	settlementBuf []bus.AuctionSettled
	alertBuf      []bus.MEVAlert
	closed        bool
	flushCount    int64
	errorCount    int64
	hook          FlushHook
}

// NewBatchWriter creates a batch writer that flushes on size or interval.
func NewBatchWriter(client *Client, database string, batchSize int, flushInterval time.Duration) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if database == "" {
		database = "sentinel"
	}

	return &BatchWriter{
		client:        client,
		database:      database,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		swapBuf:       make([]bus.SwapObserved, 0, batchSize),
		settlementBuf: make([]bus.AuctionSettled, 0, batchSize),
		alertBuf:      make([]bus.MEVAlert, 0, batchSize),
	}
}

// SetFlushHook replaces the ClickHouse insert path with a callback.
func (w *BatchWriter) SetFlushHook(hook FlushHook) {
	w.mu.Lock()
	w.hook = hook
	w.mu.Unlock()
}

// WriteSwap buffers a swap observation, flushing if the buffer is full.
func (w *BatchWriter) WriteSwap(ctx context.Context, s bus.SwapObserved) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("writer is closed")
	}
	w.swapBuf = append(w.swapBuf, s)
	full := len(w.swapBuf) >= w.batchSize
	w.mu.Unlock()

	if full {
		return w.Flush(ctx)
	}
	return nil
}

// WriteSettlement buffers an auction settlement, flushing if full.
func (w *BatchWriter) WriteSettlement(ctx context.Context, s bus.AuctionSettled) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("writer is closed")
	}
	w.settlementBuf = append(w.settlementBuf, s)
	full := len(w.settlementBuf) >= w.batchSize
	w.mu.Unlock()

	if full {
		return w.Flush(ctx)
	}
	return nil
}

// WriteAlert buffers an MEV alert, flushing if full.
func (w *BatchWriter) WriteAlert(ctx context.Context, a bus.MEVAlert) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("writer is closed")
	}
	w.alertBuf = append(w.alertBuf, a)
	full := len(w.alertBuf) >= w.batchSize
	w.mu.Unlock()

	if full {
		return w.Flush(ctx)
	}
	return nil
}

// Start begins the background flush loop. Blocks until context is cancelled.
func (w *BatchWriter) Start(ctx context.Context) {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	log.Info().
		Int("batch_size", w.batchSize).
		Dur("flush_interval", w.flushInterval).
		Msg("ClickHouse batch writer started")

	for {
		select {
		case <-ctx.Done():
			// Final flush on shutdown.
			if err := w.Flush(context.Background()); err != nil {
				log.Error().Err(err).Msg("Final flush error on shutdown")
			}
			return
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				log.Error().Err(err).Msg("Periodic flush error")
			}
		}
	}
}

// Flush writes all buffered rows out.
func (w *BatchWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	swaps := w.swapBuf
	settlements := w.settlementBuf
	alerts := w.alertBuf
	w.swapBuf = make([]bus.SwapObserved, 0, w.batchSize)
	w.settlementBuf = make([]bus.AuctionSettled, 0, w.batchSize)
	w.alertBuf = make([]bus.MEVAlert, 0, w.batchSize)
	hook := w.hook
	w.mu.Unlock()

	if len(swaps) == 0 && len(settlements) == 0 && len(alerts) == 0 {
		return nil
	}

	var firstErr error
	record := func(err error, count int, what string) {
		if err != nil {
			log.Error().Err(err).Int("count", count).Msg("Failed to flush " + what)
			w.mu.Lock()
			w.errorCount++
			w.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if len(swaps) > 0 {
		record(w.flushTable(ctx, hook, TableSwaps, swapRows(swaps), w.insertSwaps), len(swaps), "swaps")
	}
	if len(settlements) > 0 {
		record(w.flushTable(ctx, hook, TableSettlements, settlementRows(settlements), w.insertSettlements), len(settlements), "settlements")
	}
	if len(alerts) > 0 {
		record(w.flushTable(ctx, hook, TableAlerts, alertRows(alerts), w.insertAlerts), len(alerts), "alerts")
	}

	w.mu.Lock()
	w.flushCount++
	w.mu.Unlock()

	log.Debug().
		Int("swaps", len(swaps)).
		Int("settlements", len(settlements)).
		Int("alerts", len(alerts)).
		Msg("ClickHouse batch flushed")

	return firstErr
}

type insertFn func(ctx context.Context, rows [][]any) error

func (w *BatchWriter) flushTable(ctx context.Context, hook FlushHook, table string, rows [][]any, insert insertFn) error {
	if hook != nil {
		return hook(ctx, w.database+"."+table, rows)
	}
	if w.client == nil {
		return fmt.Errorf("no clickhouse client and no flush hook")
	}
	return insert(ctx, rows)
}

func swapRows(swaps []bus.SwapObserved) [][]any {
	rows := make([][]any, 0, len(swaps))
	for _, s := range swaps {
		rows = append(rows, []any{
			s.Pool.Hex(), s.Trader.Hex(), s.Timestamp,
			s.AmountIn.InexactFloat64(), s.AmountOut.InexactFloat64(),
			s.SwapCount, s.Volume.InexactFloat64(), s.EventID,
		})
	}
	return rows
}

func settlementRows(settlements []bus.AuctionSettled) [][]any {
	rows := make([][]any, 0, len(settlements))
	for _, s := range settlements {
		rows = append(rows, []any{
			s.Pool.Hex(), s.AuctionID, s.Timestamp, s.Winner.Hex(),
			s.WinningBid.InexactFloat64(), s.WinnerShare.InexactFloat64(),
			s.TreasuryCut.InexactFloat64(), s.ProtocolCut.InexactFloat64(),
			s.InsuranceCut.InexactFloat64(), s.FeeBps, s.EventID,
		})
	}
	return rows
}

func alertRows(alerts []bus.MEVAlert) [][]any {
	rows := make([][]any, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []any{
			a.Pool.Hex(), a.Trader.Hex(), a.Timestamp,
			a.AmountIn.InexactFloat64(), a.Score.InexactFloat64(),
			a.Threshold.InexactFloat64(), a.Evidence.Hex(), a.EventID,
		})
	}
	return rows
}

func (w *BatchWriter) insertSwaps(ctx context.Context, rows [][]any) error {
	batch, err := w.client.Conn().PrepareBatch(ctx,
		"INSERT INTO "+w.database+"."+TableSwaps+
			" (pool, trader, ts, amount_in, amount_out, swap_count, rolling_volume, event_id)")
	if err != nil {
		return fmt.Errorf("prepare swap batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r...); err != nil {
			return fmt.Errorf("append swap: %w", err)
		}
	}
	return batch.Send()
}

func (w *BatchWriter) insertSettlements(ctx context.Context, rows [][]any) error {
	batch, err := w.client.Conn().PrepareBatch(ctx,
		"INSERT INTO "+w.database+"."+TableSettlements+
			" (pool, auction_id, ts, winner, winning_bid, winner_share, treasury_cut, protocol_cut, insurance_cut, fee_bps, event_id)")
	if err != nil {
		return fmt.Errorf("prepare settlement batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r...); err != nil {
			return fmt.Errorf("append settlement: %w", err)
		}
	}
	return batch.Send()
}

func (w *BatchWriter) insertAlerts(ctx context.Context, rows [][]any) error {
	batch, err := w.client.Conn().PrepareBatch(ctx,
		"INSERT INTO "+w.database+"."+TableAlerts+
			" (pool, trader, ts, amount_in, score, threshold, evidence, event_id)")
	if err != nil {
		return fmt.Errorf("prepare alert batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(r...); err != nil {
			return fmt.Errorf("append alert: %w", err)
		}
	}
	return batch.Send()
}

// Close marks the writer as closed.
func (w *BatchWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	log.Info().
		Int64("total_flushes", w.flushCount).
		Int64("errors", w.errorCount).
		Msg("ClickHouse batch writer closed")
	return nil
}

// Stats returns writer statistics.
func (w *BatchWriter) Stats() (flushCount, errorCount int64, pendingSwaps, pendingSettlements int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushCount, w.errorCount, len(w.swapBuf), len(w.settlementBuf)
}
