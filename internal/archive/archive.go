// Package archive keeps a record of every finished match.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/DoyleJ11/secret-chancellor/internal/engine"
)

// ErrDuplicate is returned when the same match is archived twice.
var ErrDuplicate = errors.New("match already archived")

const uniqueViolation = "23505"

type RosterEntry struct {
	Name  string         `json:"name"`
	Role  engine.Role    `json:"role"`
	Alive bool           `json:"alive"`
	Side  engine.Faction `json:"side"`
}

type MatchRecord struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Code        string         `gorm:"size:16;not null;uniqueIndex:idx_match_code_finished"`
	Players     int            `gorm:"not null"`
	Winner      engine.Faction `gorm:"size:32;not null"`
	WinReason   string         `gorm:"not null"`
	UnionTrack  int            `gorm:"not null"`
	OfficeTrack int            `gorm:"not null"`
	Roster      []RosterEntry  `gorm:"serializer:json;type:jsonb"`
	FinishedAt  time.Time      `gorm:"not null;uniqueIndex:idx_match_code_finished"`
}

func (MatchRecord) TableName() string { return "match_records" }

// NewRecord flattens a finished session into an archive row.
func NewRecord(s engine.Session, finishedAt time.Time) MatchRecord {
	rec := MatchRecord{
		ID:          uuid.New(),
		Code:        s.Code,
		Players:     len(s.Participants),
		Winner:      s.Winner,
		WinReason:   s.WinReason,
		UnionTrack:  len(s.UnionTrack),
		OfficeTrack: len(s.OfficeTrack),
		Roster:      make([]RosterEntry, 0, len(s.Participants)),
		FinishedAt:  finishedAt.UTC().Truncate(time.Microsecond),
	}
	for _, p := range s.Participants {
		rec.Roster = append(rec.Roster, RosterEntry{
			Name:  p.Name,
			Role:  p.Role,
			Alive: p.Alive,
			Side:  p.Role.Faction(),
		})
	}
	return rec
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

// Open connects to postgres and migrates the archive table.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	if err := db.AutoMigrate(&MatchRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Store{db: db, log: log, now: time.Now}, nil
}

func (s *Store) Record(ctx context.Context, session engine.Session) error {
	if session.Phase != engine.PhaseGameOver {
		return fmt.Errorf("archive %s: match is not over", session.Code)
	}
	rec := NewRecord(session, s.now())
	err := s.db.WithContext(ctx).Create(&rec).Error
	if isDuplicate(err) {
		return fmt.Errorf("archive %s: %w", session.Code, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("archive %s: %w", session.Code, err)
	}
	s.log.Info("match archived",
		zap.String("code", rec.Code),
		zap.String("id", rec.ID.String()),
		zap.String("winner", string(rec.Winner)))
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Nop drops every record. It is used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, engine.Session) error { return nil }
