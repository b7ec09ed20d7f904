package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Driver names a live-store backend.
type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverMySQL  Driver = "mysql"
)

// Backend identifies one live store: a driver plus its DSN (a file path for
// sqlite).
type Backend struct {
	Driver Driver
	DSN    string
}

func (b Backend) String() string {
	if b.Driver == DriverMySQL {
		return "mysql"
	}
	return fmt.Sprintf("%s:%s", b.Driver, b.DSN)
}

// Database is the live entity store the ledger is mutated through.
type Database struct {
	db      *gorm.DB
	backend Backend
}

// Open connects to the backend and migrates the ledger schema.
func Open(b Backend) (*Database, error) {
	var dialector gorm.Dialector
	switch b.Driver {
	case DriverSQLite, "":
		if dir := filepath.Dir(b.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(b.DSN)
	case DriverMySQL:
		dialector = mysql.Open(b.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", b.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{db: db, backend: b}, nil
}

func (d *Database) Backend() Backend { return d.backend }

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn inside a single database transaction. Any error
// returned by fn rolls every write back.
func (d *Database) Transaction(ctx context.Context, fn func(tx *Database) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx, backend: d.backend})
	})
}

// Create inserts a single entity. A missing ID is assigned on the way in.
func (d *Database) Create(ctx context.Context, v any) error {
	if err := d.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("failed to save %T: %w", v, err)
	}
	return nil
}

func (d *Database) SaveTransaction(ctx context.Context, tx *Transaction) error {
	return d.Create(ctx, tx)
}

// occupancyModels are the kinds that make a store count as holding user data.
// Categories alone do not: the app seeds defaults on first launch.
func occupancyModels() []any {
	return []any{&Wallet{}, &Transaction{}, &RecurringRule{}, &Budget{}, &WalletFolder{}}
}

// IsOccupied reports whether any wallet, transaction, recurring rule, budget
// or wallet folder exists.
func (d *Database) IsOccupied(ctx context.Context) (bool, error) {
	return d.anyRows(ctx, occupancyModels())
}

// IsEmpty reports whether no entity of any kind exists.
func (d *Database) IsEmpty(ctx context.Context) (bool, error) {
	found, err := d.anyRows(ctx, allModels())
	return !found, err
}

func (d *Database) anyRows(ctx context.Context, models []any) (bool, error) {
	for _, m := range models {
		var cnt int64
		if err := d.db.WithContext(ctx).Model(m).Count(&cnt).Error; err != nil {
			return false, fmt.Errorf("failed to count %T: %w", m, err)
		}
		if cnt > 0 {
			return true, nil
		}
	}
	return false, nil
}

// clear deletes every row of every kind. References carry no constraints,
// so the order does not matter.
func (d *Database) clear(ctx context.Context) error {
	for _, m := range allModels() {
		err := d.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error
		if err != nil {
			return fmt.Errorf("failed to clear %T: %w", m, err)
		}
	}
	return nil
}
