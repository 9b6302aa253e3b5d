package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/documentrestoreflow/internal/models"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// batchRow is the batches table.
type batchRow struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	FileCount int    `gorm:"not null"`
	CreatedAt time.Time
}

func (batchRow) TableName() string { return "batches" }

// fileRecordRow is the relational projection of models.FileRecord.
type fileRecordRow struct {
	ID             string `gorm:"primaryKey;type:varchar(64)"`
	BatchID        string `gorm:"index:idx_file_batch_basename,priority:1;type:varchar(64);not null"`
	Position       int    `gorm:"not null"`
	OriginalName   string `gorm:"type:text;not null"`
	ObjectRef      string `gorm:"uniqueIndex;type:varchar(1024);not null"`
	ObjectBasename string `gorm:"index:idx_file_batch_basename,priority:2;index:idx_file_basename;type:varchar(512);not null"`
	UploaderID     string `gorm:"type:varchar(128)"`
	BranchID       string `gorm:"type:varchar(128)"`
	DeclaredType   string `gorm:"type:varchar(32)"`
	ContentType    string `gorm:"type:varchar(128)"`
	SizeBytes      int64
	Status         string `gorm:"index;type:varchar(16);not null"`

	// EnhancedRefs: restored page refs in page order, then the assembled PDF.
	EnhancedRefs datatypes.JSONSlice[string]

	ClassLabel      *string  `gorm:"type:varchar(32)"`
	ClassConfidence *float64
	ErrorDetails    string   `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (fileRecordRow) TableName() string { return "file_records" }

func rowFromRecord(r models.FileRecord) fileRecordRow {
	row := fileRecordRow{
		ID:             r.ID,
		BatchID:        r.BatchID,
		Position:       r.Position,
		OriginalName:   r.OriginalName,
		ObjectRef:      r.ObjectRef,
		ObjectBasename: r.ObjectBasename,
		UploaderID:     r.UploaderID,
		BranchID:       r.BranchID,
		DeclaredType:   r.DeclaredType,
		ContentType:    r.ContentType,
		SizeBytes:      r.SizeBytes,
		Status:         string(r.Status),
		EnhancedRefs:   datatypes.NewJSONSlice(r.EnhancedRefs),
		ErrorDetails:   r.ErrorDetails,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.Classification != nil {
		label, conf := r.Classification.Label, r.Classification.Confidence
		row.ClassLabel, row.ClassConfidence = &label, &conf
	}
	return row
}

func (row fileRecordRow) record() models.FileRecord {
	r := models.FileRecord{
		ID:             row.ID,
		BatchID:        row.BatchID,
		Position:       row.Position,
		OriginalName:   row.OriginalName,
		ObjectRef:      row.ObjectRef,
		ObjectBasename: row.ObjectBasename,
		UploaderID:     row.UploaderID,
		BranchID:       row.BranchID,
		DeclaredType:   row.DeclaredType,
		ContentType:    row.ContentType,
		SizeBytes:      row.SizeBytes,
		Status:         models.FileStatus(row.Status),
		EnhancedRefs:   append([]string{}, row.EnhancedRefs...),
		ErrorDetails:   row.ErrorDetails,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if row.ClassLabel != nil {
		r.Classification = &models.Classification{Label: *row.ClassLabel}
		if row.ClassConfidence != nil {
			r.Classification.Confidence = *row.ClassConfidence
		}
	}
	return r
}

// GormStore keeps records in Postgres, or SQLite for local runs and tests.
type GormStore struct {
	db *gorm.DB
}

// OpenGorm connects to the database, tunes the pool and creates the schema.
// driver is "postgres" or "sqlite".
func OpenGorm(ctx context.Context, driver, dsn string, debug bool) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	logMode := logger.Warn
	if debug {
		logMode = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logMode),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// SQLite serialises writers; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	store := NewGormStore(db)
	if err := store.AutoMigrate(); err != nil {
		return nil, err
	}
	slog.Info("Record store ready.", "driver", driver)
	return store, nil
}

// NewGormStore wraps an existing connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the batches and file_records tables.
func (s *GormStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&batchRow{}, &fileRecordRow{}); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Create(ctx context.Context, batch models.Batch, files []models.FileDescriptor) ([]models.FileRecord, error) {
	if err := validateCreate(batch, files); err != nil {
		return nil, err
	}
	recs := make([]models.FileRecord, len(files))
	rows := make([]fileRecordRow, len(files))
	for i, f := range files {
		recs[i] = newRecord(batch, i, f)
		rows[i] = rowFromRecord(recs[i])
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&batchRow{ID: batch.ID, FileCount: len(files), CreatedAt: batch.CreatedAt}).Error; err != nil {
			return fmt.Errorf("failed to create batch: %w", err)
		}
		if err := tx.Create(&rows).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("object ref already recorded: %w", err)
			}
			return fmt.Errorf("failed to create file records: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *GormStore) GetBatch(ctx context.Context, batchID string) ([]models.FileRecord, error) {
	var rows []fileRecordRow
	err := s.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}
	if len(rows) == 0 {
		return nil, models.ErrBatchNotFound
	}
	recs := make([]models.FileRecord, len(rows))
	for i, row := range rows {
		recs[i] = row.record()
	}
	sortRecords(recs)
	return recs, nil
}

func (s *GormStore) MarkProcessing(ctx context.Context, batchID string) (int, error) {
	result := s.db.WithContext(ctx).
		Model(&fileRecordRow{}).
		Where("batch_id = ? AND status = ?", batchID, string(models.StatusUploaded)).
		Updates(map[string]any{
			"status":     string(models.StatusProcessing),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark batch %s processing: %w", batchID, result.Error)
	}
	return int(result.RowsAffected), nil
}

func (s *GormStore) ApplyResult(ctx context.Context, u models.ResultUpdate) (bool, error) {
	return s.update(ctx, u.BatchID, u.ObjectRef, func(rec *models.FileRecord) bool {
		return applyResult(rec, u, time.Now().UTC())
	})
}

func (s *GormStore) MarkFailed(ctx context.Context, u models.FailureUpdate) (bool, error) {
	return s.update(ctx, u.BatchID, u.ObjectRef, func(rec *models.FileRecord) bool {
		return applyFailure(rec, u, time.Now().UTC())
	})
}

// update locks the matched row for the duration of the transaction, so
// concurrent updates to one record serialise.
func (s *GormStore) update(ctx context.Context, batchID, ref string, mutate func(*models.FileRecord) bool) (bool, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockMatch(tx, batchID, ref)
		if err != nil {
			return err
		}
		rec := row.record()
		if !mutate(&rec) {
			return nil
		}
		updated := rowFromRecord(rec)
		err = tx.Model(&fileRecordRow{}).Where("id = ?", row.ID).Updates(map[string]any{
			"status":           updated.Status,
			"enhanced_refs":    updated.EnhancedRefs,
			"class_label":      updated.ClassLabel,
			"class_confidence": updated.ClassConfidence,
			"error_details":    updated.ErrorDetails,
			"updated_at":       updated.UpdatedAt,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to update record %s: %w", row.ID, err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func lockMatch(tx *gorm.DB, batchID, ref string) (fileRecordRow, error) {
	locked := tx.Clauses(clause.Locking{Strength: "UPDATE"})

	var rows []fileRecordRow
	if err := locked.Where("object_ref = ?", ref).Limit(1).Find(&rows).Error; err != nil {
		return fileRecordRow{}, fmt.Errorf("failed to look up %s: %w", ref, err)
	}
	if len(rows) == 1 {
		return rows[0], nil
	}

	q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("object_basename = ?", models.Basename(ref))
	if batchID != "" {
		q = q.Where("batch_id = ?", batchID)
	}
	if err := q.Limit(2).Find(&rows).Error; err != nil {
		return fileRecordRow{}, fmt.Errorf("failed to look up basename of %s: %w", ref, err)
	}
	return pickCandidate(rows, batchID, ref)
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}
