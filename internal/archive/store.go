package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/call-intake-poc-v1/server/internal/agent/model"
	"github.com/call-intake-poc-v1/server/internal/agent/taxonomy"
	errx "github.com/call-intake-poc-v1/server/internal/core/error"
	"github.com/call-intake-poc-v1/server/internal/intake"
	logx "github.com/call-intake-poc-v1/server/pkg/logger"
)

// Unrouted is the department recorded when the purpose is unknown.
const Unrouted = "unrouted"

// Config selects the archive database.
type Config struct {
	Driver string `envconfig:"ARCHIVE_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"ARCHIVE_DSN" default:"data/intake.db"`
}

// GormStore archives frozen intake records as department tickets.
type GormStore struct {
	db  *gorm.DB
	tax *taxonomy.Taxonomy
}

func NewGormStore(cfg Config, tax *taxonomy.Taxonomy) (*GormStore, error) {
	gormDB, err := OpenGorm(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open intake archive: %w", err)
	}
	return newGormStore(gormDB, tax)
}

// newGormStore migrates the ticket table. The connection is closed when
// migration fails.
func newGormStore(db *gorm.DB, tax *taxonomy.Taxonomy) (*GormStore, error) {
	store := &GormStore{db: db, tax: tax}
	if err := store.db.AutoMigrate(&ticketRow{}); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate intake archive: %w", err)
	}
	return store, nil
}

// Save stores res as a ticket. Saving the same call twice overwrites it.
func (s *GormStore) Save(ctx context.Context, res intake.Result) error {
	if res.CallID == "" {
		return fmt.Errorf("call id is required")
	}
	retries, err := sonic.MarshalString(res.Retries)
	if err != nil {
		return fmt.Errorf("marshal retries: %w", err)
	}

	// a corrected identity can leave the other branch's slots filled
	rec := res.Record.ForIdentity()
	row := ticketRow{
		CallID:       res.CallID,
		Name:         rec.Name,
		Identity:     string(rec.Identity),
		StudentID:    rec.StudentID,
		CompanyName:  rec.CompanyName,
		CompanyPhone: rec.CompanyPhone,
		Email:        rec.Email,
		PurposeType:  rec.PurposeType,
		PurposeText:  rec.PurposeText,
		Action:       string(rec.Action),
		Outcome:      string(res.Outcome),
		Department:   s.route(rec.PurposeType),
		Reason:       res.Reason,
		RetriesJSON:  retries,
		Turns:        res.Turns,
		StartedAt:    res.StartedAt.UTC(),
		EndedAt:      res.EndedAt.UTC(),
		CreatedAt:    time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return errx.WrapGorm(err)
	}
	logx.Info().
		Str("call_id", res.CallID).
		Str("purpose_type", rec.PurposeType).
		Str("department", row.Department).
		Str("action", row.Action).
		Msg("Intake forwarded")
	return nil
}

func (s *GormStore) Get(ctx context.Context, callID string) (Ticket, error) {
	var row ticketRow
	if err := s.db.WithContext(ctx).Where("call_id = ?", callID).Take(&row).Error; err != nil {
		return Ticket{}, errx.WrapGorm(err)
	}
	return decodeTicket(row)
}

// ListByPurpose returns the newest tickets for a taxonomy key.
func (s *GormStore) ListByPurpose(ctx context.Context, purposeType string, limit int) ([]Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []ticketRow
	err := s.db.WithContext(ctx).
		Where("purpose_type = ?", purposeType).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errx.WrapGorm(err)
	}
	out := make([]Ticket, 0, len(rows))
	for _, row := range rows {
		t, err := decodeTicket(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) route(purposeType string) string {
	if s.tax == nil {
		return Unrouted
	}
	if desc, ok := s.tax.Description(purposeType); ok && desc != "" {
		return desc
	}
	return Unrouted
}

func decodeTicket(row ticketRow) (Ticket, error) {
	retries := map[model.Field]int{}
	if row.RetriesJSON != "" {
		if err := sonic.UnmarshalString(row.RetriesJSON, &retries); err != nil {
			return Ticket{}, fmt.Errorf("decode retries for %s: %w", row.CallID, err)
		}
	}
	return row.toTicket(retries), nil
}

var _ intake.RecordSink = (*GormStore)(nil)
