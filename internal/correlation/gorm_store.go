package correlation

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JSONObject is a JSON object column, stored as text.
type JSONObject map[string]any

// Value implements the driver.Valuer interface
func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONObject) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = JSONObject{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal JSON object value: %v", value)
	}
	return json.Unmarshal(raw, j)
}

// recordRow is the persisted form of a Record.
type recordRow struct {
	RequestID    string     `gorm:"type:varchar(255);primaryKey"`
	AnalysisData JSONObject `gorm:"type:text;not null"`
	Ready        bool       `gorm:"not null;default:true"`
	StoredAt     time.Time  `gorm:"not null;index"`
}

func (recordRow) TableName() string {
	return "correlation_records"
}

func (r recordRow) toRecord() *Record {
	data := map[string]any(r.AnalysisData)
	if data == nil {
		data = map[string]any{}
	}
	return &Record{
		RequestID:    r.RequestID,
		AnalysisData: data,
		Timestamp:    r.StoredAt.UTC(),
		Ready:        r.Ready,
	}
}

// GormStore persists records through gorm. With a positive TTL, records older
// than the TTL are treated as absent and removed by PurgeExpired.
type GormStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewGormStore migrates the records table and returns a store over db.
func NewGormStore(db *gorm.DB, ttl time.Duration) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate correlation records: %w", err)
	}
	return newGormStore(db, ttl), nil
}

func newGormStore(db *gorm.DB, ttl time.Duration) *GormStore {
	return &GormStore{db: db, ttl: ttl, now: time.Now}
}

func (s *GormStore) Put(ctx context.Context, requestID string, analysisData map[string]any) (*Record, error) {
	if requestID == "" {
		return nil, ErrRequestIDRequired
	}

	row := recordRow{
		RequestID:    requestID,
		AnalysisData: JSONObject(analysisData),
		Ready:        true,
		StoredAt:     s.now().UTC(),
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store analysis data: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) Get(ctx context.Context, requestID string) (*Record, error) {
	var row recordRow
	query := s.db.WithContext(ctx).Where("request_id = ?", requestID)
	if s.ttl > 0 {
		query = query.Where("stored_at > ?", s.now().UTC().Add(-s.ttl))
	}
	if err := query.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch analysis data: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) Status(ctx context.Context, requestID string) (Status, error) {
	rec, err := s.Get(ctx, requestID)
	if errors.Is(err, ErrNotFound) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return statusOf(rec), nil
}

// PurgeExpired deletes records older than the TTL and returns how many were removed.
func (s *GormStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Where("stored_at <= ?", s.now().UTC().Add(-s.ttl)).
		Delete(&recordRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge expired records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RunSweeper calls PurgeExpired every interval until ctx is done.
func (s *GormStore) RunSweeper(ctx context.Context, interval time.Duration) error {
	if s.ttl <= 0 || interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "correlation sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "expired correlation records purged", "count", n)
			}
		}
	}
}
