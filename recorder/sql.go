package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/higress-group/expertbot/config"
	"gorm.io/driver/clickhouse"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// RunRecordRow is the table layout of the SQL sink.
type RunRecordRow struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:128;uniqueIndex"`
	Query     string    `gorm:"type:text"`
	Alias     string    `gorm:"size:64;index"`
	Answer    string    `gorm:"type:text"`
	Payload   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

func (RunRecordRow) TableName() string { return "run_records" }

// SQLSink stores records through gorm.
type SQLSink struct {
	db *gorm.DB
}

func NewSQLSink(cfg config.SQLRecordConfig) (*SQLSink, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "clickhouse":
		dialector = clickhouse.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s record store failed, err: %w", cfg.Driver, err)
	}
	return NewSQLSinkWithDB(db)
}

func NewSQLSinkWithDB(db *gorm.DB) (*SQLSink, error) {
	if err := db.AutoMigrate(&RunRecordRow{}); err != nil {
		return nil, fmt.Errorf("migrate run_records failed, err: %w", err)
	}
	return &SQLSink{db: db}, nil
}

func (s *SQLSink) Type() string { return "sql" }

func (s *SQLSink) Write(ctx context.Context, rec *Record) error {
	row := RunRecordRow{
		Name:      rec.Name,
		Query:     rec.Field("query"),
		Alias:     rec.Field("alias"),
		Answer:    rec.Field("answer"),
		Payload:   string(rec.Payload),
		CreatedAt: rec.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Find loads a stored record by name.
func (s *SQLSink) Find(ctx context.Context, name string) (*RunRecordRow, error) {
	var row RunRecordRow
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *SQLSink) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
