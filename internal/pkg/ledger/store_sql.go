package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// entryRecord 账本条目表结构
type entryRecord struct {
	Idx          int       `gorm:"column:idx;primaryKey;autoIncrement:false"`
	Timestamp    time.Time `gorm:"column:timestamp;not null"`
	Payload      string    `gorm:"column:payload;type:longtext;not null"`
	PreviousHash string    `gorm:"column:previous_hash;size:64;not null"`
	Hash         string    `gorm:"column:hash;size:64;not null;uniqueIndex"`
}

func (entryRecord) TableName() string {
	return "ledger_entries"
}

// SQLStore 基于 gorm 的关系库存储，支持 sqlite 与 mysql
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore 打开数据库并迁移表结构
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.AutoMigrate(&entryRecord{}); err != nil {
		return nil, fmt.Errorf("migrate ledger table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Load(ctx context.Context) ([]Entry, error) {
	var records []entryRecord
	if err := s.db.WithContext(ctx).Order("idx asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load ledger entries: %w", err)
	}

	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, Entry{
			Index:        r.Idx,
			Timestamp:    r.Timestamp.UTC(),
			Payload:      json.RawMessage(r.Payload),
			PreviousHash: r.PreviousHash,
			Hash:         r.Hash,
		})
	}
	return entries, nil
}

// Append 在事务内读取最大索引的条目并核对前驱；并发插入同一索引由主键约束拒绝
func (s *SQLStore) Append(ctx context.Context, entry Entry) error {
	record := entryRecord{
		Idx:          entry.Index,
		Timestamp:    entry.Timestamp,
		Payload:      string(entry.Payload),
		PreviousHash: entry.PreviousHash,
		Hash:         entry.Hash,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			last entryRecord
			tail *Entry
		)
		err := tx.Order("idx desc").Limit(1).Take(&last).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return fmt.Errorf("read ledger tail: %w", err)
		default:
			tail = &Entry{Index: last.Idx, Hash: last.Hash}
		}
		if err := checkTail(tail, entry); err != nil {
			return err
		}

		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: entry %d already exists", ErrStaleTail, entry.Index)
			}
			return err
		}
		return nil
	})
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
