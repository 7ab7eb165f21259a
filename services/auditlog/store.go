package auditlog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"defil/core/events"
	"defil/core/types"
)

// ErrChainBroken is returned by Verify when a stored record no longer hashes
// to the value the next record committed to.
var ErrChainBroken = errors.New("auditlog: hash chain broken")

// Record is one committed market record. Every record commits to its
// predecessor so later edits to the table are detectable.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex"`
	Height     uint64    `gorm:"index"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	PrevHash   string    `gorm:"size:64"`
	Hash       string    `gorm:"size:64;uniqueIndex"`
	CreatedAt  time.Time
}

// Open connects to the audit database. DSNs starting with postgres:// or
// postgresql:// use Postgres; anything else is treated as a SQLite path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("auditlog: dsn required")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

// Store appends rendered market records to the audit table. It implements
// events.Emitter.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	seq  uint64
	head string
}

// New migrates the schema and resumes the chain from the last stored record.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("auditlog: nil database")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("auditlog: migrate: %w", err)
	}
	s := &Store{db: db, logger: log, now: time.Now}
	var last Record
	err := db.Order("seq desc").Limit(1).Take(&last).Error
	switch {
	case err == nil:
		s.seq = last.Seq
		s.head = last.Hash
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("auditlog: load head: %w", err)
	}
	return s, nil
}

// Emit implements events.Emitter. Records without a wire form are skipped and
// storage failures are logged because emitters cannot fail the producer.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	renderer, ok := evt.(events.Renderer)
	if !ok {
		return
	}
	if _, err := s.Append(context.Background(), renderer.Event()); err != nil {
		s.logger.Error("audit append failed",
			slog.String("type", evt.EventType()),
			slog.Any("error", err))
	}
}

// Append stores evt at the head of the chain.
func (s *Store) Append(ctx context.Context, evt *types.Event) (*Record, error) {
	if evt == nil {
		return nil, fmt.Errorf("auditlog: nil event")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return nil, fmt.Errorf("auditlog: encode attributes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &Record{
		ID:         uuid.New(),
		Seq:        s.seq + 1,
		Height:     evt.Height,
		Type:       evt.Type,
		Attributes: string(attrs),
		PrevHash:   s.head,
		CreatedAt:  s.now().UTC(),
	}
	rec.Hash = hashRecord(rec)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("auditlog: insert: %w", err)
	}
	s.seq = rec.Seq
	s.head = rec.Hash
	return rec, nil
}

// List returns up to limit records with a sequence number above after, in
// order.
func (s *Store) List(ctx context.Context, after uint64, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []Record
	err := s.db.WithContext(ctx).Where("seq > ?", after).Order("seq asc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("auditlog: list: %w", err)
	}
	return out, nil
}

// Verify walks the whole table and checks every link of the chain.
func (s *Store) Verify(ctx context.Context) error {
	var (
		after uint64
		prev  string
	)
	for {
		batch, err := s.List(ctx, after, 500)
		if err != nil {
			return err
		}
		for i := range batch {
			rec := &batch[i]
			if rec.Seq != after+1 {
				return fmt.Errorf("%w: gap before seq %d", ErrChainBroken, rec.Seq)
			}
			if rec.PrevHash != prev || hashRecord(rec) != rec.Hash {
				return fmt.Errorf("%w: at seq %d", ErrChainBroken, rec.Seq)
			}
			prev = rec.Hash
			after = rec.Seq
		}
		if len(batch) < 500 {
			return nil
		}
	}
}

// Head returns the sequence number and hash of the latest record.
func (s *Store) Head() (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq, s.head
}

func hashRecord(rec *Record) string {
	buf := bytes.NewBuffer(nil)
	writeDelimited(buf, []byte(rec.PrevHash))
	_ = binary.Write(buf, binary.BigEndian, rec.Seq)
	_ = binary.Write(buf, binary.BigEndian, rec.Height)
	writeDelimited(buf, []byte(rec.Type))
	writeDelimited(buf, []byte(rec.Attributes))
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func writeDelimited(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}
