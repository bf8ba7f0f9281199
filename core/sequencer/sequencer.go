package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vatchain/core/events"
	"vatchain/crypto"
	nativecommon "vatchain/native/common"
	"vatchain/observability"
)

// Sequencer applies transactions one at a time, numbers the successful ones
// and stores a receipt for each. Rejected transactions leave no state behind.
type Sequencer struct {
	mu      sync.Mutex
	ledger  *Ledger
	log     *ReceiptLog
	head    Head
	quota   nativecommon.Quota
	usage   map[crypto.Address]nativecommon.QuotaNow
	now     func() time.Time
	metrics *observability.LedgerMetrics
	logger  *slog.Logger

	subMu  sync.Mutex
	subs   map[uint64]chan *Receipt
	nextID uint64
}

// New opens a sequencer over the ledger, resuming the persisted sequence.
func New(ledger *Ledger, quota nativecommon.Quota) (*Sequencer, error) {
	if ledger == nil {
		return nil, fmt.Errorf("sequencer: ledger required")
	}
	s := &Sequencer{
		ledger:  ledger,
		log:     NewReceiptLog(ledger.db),
		quota:   quota,
		usage:   make(map[crypto.Address]nativecommon.QuotaNow),
		now:     time.Now,
		metrics: observability.Ledger(),
		logger:  ledger.logger.With("module", "sequencer"),
		subs:    make(map[uint64]chan *Receipt),
	}
	head, err := s.log.Head()
	if err != nil {
		return nil, err
	}
	s.head = head
	s.metrics.SetSequence(head.Sequence)
	return s, nil
}

func (s *Sequencer) Ledger() *Ledger { return s.ledger }

// Receipts exposes the receipt log for reads.
func (s *Sequencer) Receipts() *ReceiptLog { return s.log }

// SetClock overrides the receipt and quota time source.
func (s *Sequencer) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Sequence returns the number of applied transactions.
func (s *Sequencer) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head.Sequence
}

// Head returns the tip of the receipt chain.
func (s *Sequencer) Head() Head {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

// Submit applies tx on behalf of caller.
func (s *Sequencer) Submit(ctx context.Context, caller crypto.Address, tx *Tx) (*Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: empty transaction", ErrInvalidTx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handler, ok := handlers[tx.Op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, tx.Op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if err := s.consumeQuota(caller, now); err != nil {
		s.metrics.Observe(tx.Op, err, 0)
		return nil, err
	}

	start := time.Now()
	s.ledger.drain()
	s.ledger.begin()
	result, err := handler(s.ledger, caller, tx)
	evts := s.ledger.drain()
	s.metrics.Observe(tx.Op, err, time.Since(start))
	if err != nil {
		s.ledger.discard()
		s.logger.Debug("transaction rejected", "op", tx.Op, "caller", caller.String(), "error", err)
		return nil, err
	}

	receipt := &Receipt{
		ID:       uuid.New(),
		Sequence: s.head.Sequence + 1,
		Op:       tx.Op,
		Caller:   caller,
		Time:     now.UTC(),
		Result:   result,
		Events:   events.Render(evts),
	}
	if err := s.log.seal(receipt, s.head); err != nil {
		s.ledger.discard()
		return nil, err
	}
	// The receipt is staged with the state change and both land in one batch.
	if err := s.log.append(receipt); err != nil {
		s.ledger.discard()
		return nil, err
	}
	if err := s.ledger.commit(); err != nil {
		s.ledger.discard()
		s.logger.Error("commit transaction", "op", tx.Op, "sequence", receipt.Sequence, "error", err)
		return nil, err
	}
	s.head = Head{Sequence: receipt.Sequence, Digest: receipt.Digest}
	s.metrics.SetSequence(s.head.Sequence)
	s.recordTotals()
	s.logger.Info("transaction applied", "op", tx.Op, "caller", caller.String(), "sequence", s.head.Sequence, "receipt", receipt.ID.String())
	s.publish(receipt)
	return receipt, nil
}

func (s *Sequencer) consumeQuota(caller crypto.Address, now time.Time) error {
	if s.quota.MaxRequestsPerEpoch == 0 {
		return nil
	}
	next, err := nativecommon.CheckQuota(s.quota, s.quota.Epoch(now.Unix()), s.usage[caller], 1)
	if err != nil {
		observability.ModuleMetrics().RecordThrottle("sequencer", "quota_exceeded")
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	s.usage[caller] = next
	return nil
}

func (s *Sequencer) recordTotals() {
	globals, err := s.ledger.Vat.Globals()
	if err != nil {
		return
	}
	s.metrics.SetTotal("debt", globals.Debt.ToBig())
	s.metrics.SetTotal("vice", globals.Vice.ToBig())
	s.metrics.SetTotal("line", globals.Line.ToBig())
}

// Receipt loads a stored receipt.
func (s *Sequencer) Receipt(id uuid.UUID) (*Receipt, error) { return s.log.Get(id) }

// ReceiptAt loads the receipt of the transaction numbered seq.
func (s *Sequencer) ReceiptAt(seq uint64) (*Receipt, error) { return s.log.At(seq) }

// Subscribe streams every receipt applied after the call. A subscriber that
// falls more than buffer receipts behind is dropped and its channel closed.
// cancel releases the subscription and is safe to call more than once.
func (s *Sequencer) Subscribe(buffer int) (<-chan *Receipt, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *Receipt, buffer)
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

func (s *Sequencer) publish(receipt *Receipt) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- receipt:
		default:
			s.logger.Warn("dropping slow receipt subscriber", "subscriber", id)
			delete(s.subs, id)
			close(ch)
		}
	}
}
