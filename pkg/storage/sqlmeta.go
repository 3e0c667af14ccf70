package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/chicogong/ytagents/pkg/schemas"
)

// videoRow is the SQL shape of a VideoRecord
type videoRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Filename  string `gorm:"not null"`
	Filepath  string `gorm:"not null"`
	Topic     string
	Duration  float64
	CreatedAt time.Time `gorm:"index"`
	Status    string    `gorm:"size:32"`
	FileSize  int64
	Playable  bool
	URL       string
	YouTubeID string `gorm:"column:youtube_id"`
}

func (videoRow) TableName() string { return "videos" }

func rowFromRecord(r *schemas.VideoRecord) *videoRow {
	return &videoRow{
		ID:        r.ID,
		Filename:  r.Filename,
		Filepath:  r.Filepath,
		Topic:     r.Topic,
		Duration:  r.Duration,
		CreatedAt: r.CreatedAt,
		Status:    r.Status,
		FileSize:  r.FileSize,
		Playable:  r.Playable,
		URL:       r.URL,
		YouTubeID: r.YouTubeID,
	}
}

func (v *videoRow) record() *schemas.VideoRecord {
	return &schemas.VideoRecord{
		ID:        v.ID,
		Filename:  v.Filename,
		Filepath:  v.Filepath,
		Topic:     v.Topic,
		Duration:  v.Duration,
		CreatedAt: v.CreatedAt.UTC(),
		Status:    v.Status,
		FileSize:  v.FileSize,
		Playable:  v.Playable,
		URL:       v.URL,
		YouTubeID: v.YouTubeID,
	}
}

// sqlMetadata stores records in a "videos" table through gorm.
// Used by the SQLite backend and for the Postgres metadata of the S3 backend.
type sqlMetadata struct {
	db *gorm.DB
}

func newSQLMetadata(db *gorm.DB) (*sqlMetadata, error) {
	if err := db.AutoMigrate(&videoRow{}); err != nil {
		return nil, err
	}
	return &sqlMetadata{db: db}, nil
}

func (m *sqlMetadata) Insert(ctx context.Context, rec *schemas.VideoRecord) error {
	return m.db.WithContext(ctx).Create(rowFromRecord(rec)).Error
}

func (m *sqlMetadata) Get(ctx context.Context, id string) (*schemas.VideoRecord, error) {
	var row videoRow
	err := m.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.record(), nil
}

func (m *sqlMetadata) List(ctx context.Context) ([]*schemas.VideoRecord, error) {
	var rows []videoRow
	if err := m.db.WithContext(ctx).Order("created_at DESC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*schemas.VideoRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].record())
	}
	return out, nil
}

func (m *sqlMetadata) Update(ctx context.Context, id string, update schemas.VideoUpdate) (*schemas.VideoRecord, error) {
	res := m.db.WithContext(ctx).Model(&videoRow{}).Where("id = ?", id).Updates(update.Columns())
	if res.Error != nil {
		return nil, res.Error
	}
	// RowsAffected can be 0 for unchanged values, so existence is decided by the read
	return m.Get(ctx, id)
}

func (m *sqlMetadata) Delete(ctx context.Context, id string) error {
	res := m.db.WithContext(ctx).Where("id = ?", id).Delete(&videoRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVideoNotFound
	}
	return nil
}

func (m *sqlMetadata) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
