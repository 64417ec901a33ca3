package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
)

// SQLiteAdapter implements ports.RecordStore using GORM and SQLite. The
// evidence store handles hot per-response state; this is the durable home of
// attendance records and their override audit trail.
type SQLiteAdapter struct {
	db *gorm.DB
}

// RecordModel is the GORM model for attendance records.
type RecordModel struct {
	RecordID      string `gorm:"primaryKey"`
	SessionID     string `gorm:"index"`
	ParticipantID string `gorm:"index"`
	DeviceID      string
	Outcome       string
	RiskScore     int
	Flags         string // JSON encoded AntiProxyFlags
	AnalysisID    string
	Timestamp     int64

	OverrideActor   string
	OverrideReason  string
	OverrideOutcome string
	OverrideAt      int64
}

// NewSQLiteAdapter initializes the database and migrates schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&RecordModel{}); err != nil {
		return nil, err
	}

	db.Exec("CREATE INDEX IF NOT EXISTS idx_records_session_participant ON record_models(session_id, participant_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_records_outcome ON record_models(outcome)")

	return &SQLiteAdapter{db: db}, nil
}

// Save inserts a new record.
func (a *SQLiteAdapter) Save(ctx context.Context, rec domain.AttendanceRecord) error {
	model, err := toModel(rec)
	if err != nil {
		return err
	}
	return a.db.WithContext(ctx).Create(&model).Error
}

// Get loads a record by id.
func (a *SQLiteAdapter) Get(ctx context.Context, recordID string) (domain.AttendanceRecord, error) {
	var model RecordModel
	err := a.db.WithContext(ctx).First(&model, "record_id = ?", recordID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.AttendanceRecord{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	return fromModel(model)
}

// Update overwrites an existing record in place.
func (a *SQLiteAdapter) Update(ctx context.Context, rec domain.AttendanceRecord) error {
	model, err := toModel(rec)
	if err != nil {
		return err
	}
	res := a.db.WithContext(ctx).Model(&RecordModel{}).
		Where("record_id = ?", rec.RecordID).
		Updates(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// ListBySession returns every record committed for a session, newest first.
func (a *SQLiteAdapter) ListBySession(ctx context.Context, sessionID string) ([]domain.AttendanceRecord, error) {
	var models []RecordModel
	err := a.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.AttendanceRecord, 0, len(models))
	for _, m := range models {
		rec, err := fromModel(m)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", m.RecordID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close releases the underlying database handle.
func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
