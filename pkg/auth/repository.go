package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	cerrors "github.com/cofferdb/coffer/pkg/errors"
	"github.com/cofferdb/coffer/pkg/types"
)

// UserRecord is the relational row wrapping one user document. The document
// itself is stored as a JSON blob; username is duplicated into its own
// column only for the unique index.
type UserRecord struct {
	Key      string `gorm:"primaryKey;type:varchar(36)"`
	Username string `gorm:"uniqueIndex;not null"`
	Document string `gorm:"type:text;not null"`
}

// TableName overrides the gorm table name
func (UserRecord) TableName() string { return "auth_users" }

// Repository is the sqlite-backed UserStore used by single-node
// installations.
type Repository struct {
	db *gorm.DB
}

// NewRepository opens (creating if necessary) the user collection database
// at path and migrates its schema.
func NewRepository(path string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, cerrors.NewConnectionFailedError(path, err)
	}

	if err := db.AutoMigrate(&UserRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Repository{db: db}, nil
}

// FetchAll returns every user document in the collection
func (r *Repository) FetchAll(ctx context.Context) ([]types.Document, error) {
	var records []UserRecord
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, cerrors.NewPersistenceError("failed to fetch user documents", err)
	}

	docs := make([]types.Document, 0, len(records))
	for _, rec := range records {
		var doc types.Document
		if err := json.Unmarshal([]byte(rec.Document), &doc); err != nil {
			return nil, cerrors.NewPersistenceError(
				fmt.Sprintf("corrupt user document %s", rec.Key), err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Upsert inserts or replaces the document identified by its "_key" field
func (r *Repository) Upsert(ctx context.Context, doc types.Document) (string, error) {
	key, _ := doc[fieldKey].(string)
	if key == "" {
		key = uuid.New().String()
		doc[fieldKey] = key
	}
	username, _ := doc[fieldUser].(string)
	if username == "" {
		return "", cerrors.NewMissingFieldError(fieldUser)
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return "", cerrors.NewPersistenceError("failed to encode user document", err)
	}

	record := UserRecord{Key: key, Username: username, Document: string(payload)}
	if err := r.db.WithContext(ctx).Save(&record).Error; err != nil {
		return "", cerrors.NewPersistenceError("failed to store user document", err)
	}
	return key, nil
}

// RemoveByKey deletes one document
func (r *Repository) RemoveByKey(ctx context.Context, key string) error {
	result := r.db.WithContext(ctx).Delete(&UserRecord{}, "key = ?", key)
	if result.Error != nil {
		return cerrors.NewPersistenceError("failed to remove user document", result.Error)
	}
	if result.RowsAffected == 0 {
		return cerrors.NewNotFoundError("user document")
	}
	return nil
}

// RemoveAll deletes every document in the collection
func (r *Repository) RemoveAll(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Where("1 = 1").Delete(&UserRecord{}).Error; err != nil {
		return cerrors.NewPersistenceError("failed to clear user collection", err)
	}
	return nil
}

// Close releases the underlying database handle
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Compile-time interface check
var _ UserStore = (*Repository)(nil)
