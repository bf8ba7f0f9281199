package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"vatchain/core/sequencer"
)

const (
	// MaxLimit caps the receipts returned by one query.
	MaxLimit     = 500
	defaultLimit = 50
)

var ErrDSNRequired = errors.New("indexer: dsn required")

// Record is the queryable projection of a receipt. Payload holds the full
// receipt JSON.
type Record struct {
	Sequence  uint64    `gorm:"primaryKey;autoIncrement:false"`
	ReceiptID string    `gorm:"uniqueIndex;size:36"`
	Op        string    `gorm:"index;size:32"`
	Caller    string    `gorm:"index;size:64"`
	Time      time.Time `gorm:"index"`
	Digest    string    `gorm:"size:64"`
	Payload   string    `gorm:"not null"`
}

func (Record) TableName() string { return "receipts" }

// Filter narrows Query. Zero fields match everything.
type Filter struct {
	Caller string
	Op     string
	// After excludes receipts numbered at or below it.
	After uint64
	Limit int
}

// Indexer mirrors the receipt log into SQL for lookups by caller and op.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to dsn and migrates the schema. postgres:// and
// postgresql:// URLs (or key=value strings naming a host) use PostgreSQL;
// anything else is a SQLite path or DSN.
func Open(dsn string, logger *slog.Logger) (*Indexer, error) {
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", dialector.Name(), err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, logger: logger.With("module", "indexer")}, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrDSNRequired
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") || strings.Contains(lower, "host=") {
		return postgres.Open(trimmed), nil
	}
	return sqlite.Open(trimmed), nil
}

func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Index stores receipt. Re-indexing a sequence number is a no-op.
func (ix *Indexer) Index(ctx context.Context, receipt *sequencer.Receipt) error {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	rec := Record{
		Sequence:  receipt.Sequence,
		ReceiptID: receipt.ID.String(),
		Op:        receipt.Op,
		Caller:    receipt.Caller.String(),
		Time:      receipt.Time.UTC(),
		Digest:    receipt.Digest,
		Payload:   string(payload),
	}
	return ix.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
}

// Last returns the highest indexed sequence number.
func (ix *Indexer) Last(ctx context.Context) (uint64, error) {
	var last uint64
	err := ix.db.WithContext(ctx).Model(&Record{}).Select("COALESCE(MAX(sequence), 0)").Scan(&last).Error
	return last, err
}

// Query returns matching receipts in sequence order.
func (ix *Indexer) Query(ctx context.Context, f Filter) ([]*sequencer.Receipt, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	q := ix.db.WithContext(ctx).Model(&Record{}).Where("sequence > ?", f.After)
	if f.Caller != "" {
		q = q.Where("caller = ?", f.Caller)
	}
	if op := strings.ToLower(strings.TrimSpace(f.Op)); op != "" {
		q = q.Where("op = ?", op)
	}
	var rows []Record
	if err := q.Order("sequence ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*sequencer.Receipt, 0, len(rows))
	for _, row := range rows {
		receipt := new(sequencer.Receipt)
		if err := json.Unmarshal([]byte(row.Payload), receipt); err != nil {
			return nil, fmt.Errorf("indexer: decode receipt %d: %w", row.Sequence, err)
		}
		out = append(out, receipt)
	}
	return out, nil
}

// CatchUp indexes every receipt in log after the last indexed one.
func (ix *Indexer) CatchUp(ctx context.Context, log *sequencer.ReceiptLog) (uint64, error) {
	last, err := ix.Last(ctx)
	if err != nil {
		return 0, err
	}
	head, err := log.Head()
	if err != nil {
		return 0, err
	}
	if head.Sequence <= last {
		return last, nil
	}
	err = log.Range(last+1, head.Sequence, func(r *sequencer.Receipt) error {
		return ix.Index(ctx, r)
	})
	if err != nil {
		return 0, err
	}
	ix.logger.Info("indexer caught up", "from", last+1, "to", head.Sequence)
	return head.Sequence, nil
}

// Run follows seq until ctx is cancelled. It subscribes before catching up
// so no receipt falls between the two, and resubscribes after being dropped
// as a slow subscriber.
func (ix *Indexer) Run(ctx context.Context, seq *sequencer.Sequencer) error {
	for {
		updates, cancel := seq.Subscribe(256)
		last, err := ix.CatchUp(ctx, seq.Receipts())
		if err != nil {
			cancel()
			return err
		}
		err = ix.follow(ctx, updates, last)
		cancel()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		ix.logger.Warn("indexer subscription dropped, catching up")
	}
}

func (ix *Indexer) follow(ctx context.Context, updates <-chan *sequencer.Receipt, last uint64) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case receipt, ok := <-updates:
			if !ok {
				return nil
			}
			if receipt.Sequence <= last {
				continue
			}
			if err := ix.Index(ctx, receipt); err != nil {
				return err
			}
			last = receipt.Sequence
		}
	}
}
