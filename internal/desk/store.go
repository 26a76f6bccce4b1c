package desk

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Submission statuses
const (
	StatusPending        = "PENDING"
	StatusAnalyzed       = "ANALYZED"
	StatusDeliveryFailed = "DELIVERY_FAILED"
)

// JSONB stores a JSON object in a text column
type JSONB map[string]any

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}
}

// SubmissionRecord is one dispatched intake snapshot held by the desk
type SubmissionRecord struct {
	RequestID  string     `gorm:"type:varchar(64);primaryKey"`
	ID         uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null"`
	Payload    JSONB      `gorm:"type:text;not null"`
	Status     string     `gorm:"type:varchar(32);index;not null;default:'PENDING'"`
	Analysis   JSONB      `gorm:"type:text"`
	LastError  string     `gorm:"type:text"`
	AnalyzedAt *time.Time `gorm:"type:datetime"`
	CreatedAt  time.Time  `gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime"`
}

// TableName returns the table name for SubmissionRecord
func (SubmissionRecord) TableName() string {
	return "submissions"
}

// SubmissionStore handles database operations for desk submissions
type SubmissionStore struct {
	db *gorm.DB
}

// NewSubmissionStore migrates the submissions table on db.
func NewSubmissionStore(db *gorm.DB) (*SubmissionStore, error) {
	if err := db.AutoMigrate(&SubmissionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SubmissionStore{db: db}, nil
}

// Save creates the submission or replaces an earlier one with the same
// request id, clearing any analysis it had.
func (s *SubmissionStore) Save(ctx context.Context, rec *SubmissionRecord) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"id", "payload", "status", "analysis", "last_error", "analyzed_at", "updated_at"}),
	}).Create(rec).Error
}

// Get returns ErrSubmissionNotFound when nothing was received for requestID.
func (s *SubmissionStore) Get(ctx context.Context, requestID string) (*SubmissionRecord, error) {
	var rec SubmissionRecord
	err := s.db.WithContext(ctx).Take(&rec, "request_id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns one page of submissions, newest first, plus the total count.
// An empty status matches every submission.
func (s *SubmissionStore) List(ctx context.Context, status string, offset, limit int) ([]SubmissionRecord, int64, error) {
	q := s.db.WithContext(ctx).Model(&SubmissionRecord{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recs []SubmissionRecord
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&recs).Error; err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// UpdateAnalysis records the outcome of delivering an analysis.
func (s *SubmissionStore) UpdateAnalysis(ctx context.Context, requestID, status string, analysis JSONB, lastError string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&SubmissionRecord{}).
		Where("request_id = ?", requestID).
		Updates(map[string]any{
			"status":      status,
			"analysis":    analysis,
			"last_error":  lastError,
			"analyzed_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}
