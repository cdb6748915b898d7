package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/swrdecode/internal/log"
)

// Artifact is one cached value in PostgreSQL
type Artifact struct {
	Session   string    `gorm:"primaryKey;column:session"`
	Kind      string    `gorm:"primaryKey;column:kind"`
	Params    string    `gorm:"primaryKey;column:params"`
	Shuffle   int       `gorm:"primaryKey;column:shuffle;autoIncrement:false"`
	Value     []byte    `gorm:"column:value;not null"`
	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for Artifact
func (Artifact) TableName() string {
	return "swr_artifacts"
}

// Postgres stores artifacts through gorm
type Postgres struct {
	DB *gorm.DB
}

// NewPostgres connects to PostgreSQL and migrates the artifact table
func NewPostgres(connectionString string) (*Postgres, error) {
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("connecting to PostgreSQL artifact store...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to PostgreSQL: %w", err)
	}
	if err := db.AutoMigrate(&Artifact{}); err != nil {
		return nil, fmt.Errorf("failed to migrate artifact table: %w", err)
	}
	log.Infof("PostgreSQL artifact store ready")

	return &Postgres{DB: db}, nil
}

func (p *Postgres) Get(ctx context.Context, key Key, dst any) (bool, error) {
	var a Artifact
	err := p.DB.WithContext(ctx).
		Where("session = ? AND kind = ? AND params = ? AND shuffle = ?", key.Session, key.Kind, key.Params, key.Shuffle).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query artifact: %w", err)
	}
	return true, unmarshal(a.Value, dst)
}

func (p *Postgres) Put(ctx context.Context, key Key, v any) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	a := Artifact{Session: key.Session, Kind: key.Kind, Params: key.Params, Shuffle: key.Shuffle, Value: data}
	err = p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session"}, {Name: "kind"}, {Name: "params"}, {Name: "shuffle"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&a).Error
	if err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
