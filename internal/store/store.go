package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: record not found")

// Repository is the set of persistence operations available inside one local transaction.
type Repository interface {
	GetOrderByOrderNo(ctx context.Context, orderNo string) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderSettlement(ctx context.Context, orderID int64, status string, settleable bool) error

	// LockStock reads the entry and holds an exclusive lock on it until the transaction ends.
	LockStock(ctx context.Context, optionID int64) (*models.StockEntry, error)
	UpdateStockQuantity(ctx context.Context, optionID int64, quantity int) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	AppendPaymentLog(ctx context.Context, entry *models.PaymentLog) error

	DeleteCartItems(ctx context.Context, userID int64, optionIDs []int64) (int64, error)
}

// Transactor runs fn inside one local transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// Reader serves the query side: settlement records and their audit trail.
type Reader interface {
	GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentsByOrderNo(ctx context.Context, orderNo string) ([]models.Payment, error)
	GetPaymentLogs(ctx context.Context, paymentID int64) ([]models.PaymentLog, error)
	GetPaymentLogsByEventType(ctx context.Context, eventType string, limit int) ([]models.PaymentLog, error)
	GetStock(ctx context.Context, optionID int64) (*models.StockEntry, error)
	ListStock(ctx context.Context) ([]models.StockEntry, error)
	Ping(ctx context.Context) error
}

// Store is the Postgres implementation of Transactor and Reader
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithinTx runs fn in a database transaction
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// reader returns queries bound to the pool for non-transactional reads
func (s *Store) reader() *queries {
	return &queries{q: s.db}
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	return s.reader().GetPaymentByID(ctx, id)
}

// GetPaymentsByOrderNo retrieves every settlement attempt of an order, newest first
func (s *Store) GetPaymentsByOrderNo(ctx context.Context, orderNo string) ([]models.Payment, error) {
	return s.reader().getPaymentsByOrderNo(ctx, orderNo)
}

// GetPaymentLogs retrieves a payment's audit trail in append order
func (s *Store) GetPaymentLogs(ctx context.Context, paymentID int64) ([]models.PaymentLog, error) {
	return s.reader().getPaymentLogs(ctx, paymentID)
}

// GetPaymentLogsByEventType retrieves the latest log entries of one kind
func (s *Store) GetPaymentLogsByEventType(ctx context.Context, eventType string, limit int) ([]models.PaymentLog, error) {
	return s.reader().getPaymentLogsByEventType(ctx, eventType, limit)
}

// GetStock retrieves the ledger entry of an option without locking it
func (s *Store) GetStock(ctx context.Context, optionID int64) (*models.StockEntry, error) {
	return s.reader().getStock(ctx, optionID)
}

// ListStock retrieves every ledger entry
func (s *Store) ListStock(ctx context.Context) ([]models.StockEntry, error) {
	return s.reader().listStock(ctx)
}
