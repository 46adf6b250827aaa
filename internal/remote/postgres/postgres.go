// Package postgres stores remote documents in a PostgreSQL jsonb table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"famledger/internal/log"
	"famledger/internal/remote"
)

// document is one record of one collection.
type document struct {
	Collection string    `gorm:"primaryKey;size:255"`
	ID         string    `gorm:"primaryKey;size:255"`
	Data       []byte    `gorm:"type:jsonb;not null"`
	UpdatedAt  time.Time `gorm:"index"`
}

func (document) TableName() string { return "documents" }

type Store struct {
	db       *gorm.DB
	watchers *remote.Watchers
	logger   *log.Logger
}

// Open connects to dsn and migrates the documents table.
func Open(dsn string, logger *log.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db, logger)
}

// New wraps an open gorm handle.
func New(db *gorm.DB, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := db.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	s := &Store{db: db, logger: logger.WithComponent(log.ComponentRemote)}
	s.watchers = remote.NewWatchers(s.Query, logger)
	return s, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, collection, id string) (remote.Record, error) {
	var doc document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, remote.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return decode(doc)
}

func (s *Store) Set(ctx context.Context, collection, id string, rec remote.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	doc := document{Collection: collection, ID: id, Data: data, UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&doc).Error
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.watchers.Notify(ctx, collection)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields remote.Fields) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND id = ?", collection, id).
			First(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return remote.ErrNotFound
		}
		if err != nil {
			return err
		}
		rec, err := decode(doc)
		if err != nil {
			return err
		}
		data, err := json.Marshal(remote.Merge(rec, fields))
		if err != nil {
			return err
		}
		return tx.Model(&document{}).
			Where("collection = ? AND id = ?", collection, id).
			Updates(map[string]any{"data": data, "updated_at": time.Now().UTC()}).Error
	})
	if errors.Is(err, remote.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	s.watchers.Notify(ctx, collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&document{}).Error
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	s.watchers.Notify(ctx, collection)
	return nil
}

// Query loads the collection and filters it in process; collections are
// per-household and small.
func (s *Store) Query(ctx context.Context, collection string, filters []remote.Filter, order remote.OrderBy) ([]remote.Record, error) {
	var docs []document
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("updated_at ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	recs := make([]remote.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := decode(doc)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping undecodable document",
				log.FieldCollection, collection,
				log.FieldRecordID, doc.ID,
				log.FieldError, err)
			continue
		}
		recs = append(recs, rec)
	}
	return remote.Apply(recs, filters, order), nil
}

func (s *Store) Subscribe(ctx context.Context, collection string, filters []remote.Filter, order remote.OrderBy, onChange func([]remote.Record)) (remote.Unsubscribe, error) {
	return s.watchers.Add(ctx, collection, filters, order, onChange)
}

// Notify refreshes live queries after a change made by another process.
func (s *Store) Notify(ctx context.Context, collection string) {
	s.watchers.Notify(ctx, collection)
}

func decode(doc document) (remote.Record, error) {
	var rec remote.Record
	if err := json.Unmarshal(doc.Data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", doc.Collection, doc.ID, err)
	}
	return rec, nil
}

var (
	_ remote.Collaborator = (*Store)(nil)
	_ remote.Notifier     = (*Store)(nil)
)
