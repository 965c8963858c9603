package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"settlement-service/internal/models"
)

// MemoryStore keeps every table in process memory. Orders looked up by number
// and stock entries are guarded by per-row locks held until the owning
// transaction ends, mirroring the FOR UPDATE reads of the Postgres store.
type MemoryStore struct {
	mu         sync.Mutex
	orders     map[int64]*models.Order
	orderItems map[int64][]models.OrderItem
	stock      map[int64]*models.StockEntry
	stockLocks map[int64]*sync.Mutex
	orderLocks map[int64]*sync.Mutex
	cart       map[int64]*models.CartItem
	payments   map[int64]*models.Payment
	logs       []models.PaymentLog

	nextOrderID   int64
	nextItemID    int64
	nextCartID    int64
	nextPaymentID int64
	nextLogID     int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:     make(map[int64]*models.Order),
		orderItems: make(map[int64][]models.OrderItem),
		stock:      make(map[int64]*models.StockEntry),
		stockLocks: make(map[int64]*sync.Mutex),
		orderLocks: make(map[int64]*sync.Mutex),
		cart:       make(map[int64]*models.CartItem),
		payments:   make(map[int64]*models.Payment),
	}
}

// SeedOrder inserts an order with its lines and returns the stored copy
func (s *MemoryStore) SeedOrder(order models.Order, items []models.OrderItem) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextOrderID++
	order.ID = s.nextOrderID
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now
	s.orders[order.ID] = &order
	s.orderLocks[order.ID] = &sync.Mutex{}

	lines := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		s.nextItemID++
		item.ID = s.nextItemID
		item.OrderID = order.ID
		lines = append(lines, item)
	}
	s.orderItems[order.ID] = lines

	clone := order
	return &clone
}

// SeedStock sets the ledger quantity of an option
func (s *MemoryStore) SeedStock(optionID int64, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stock[optionID] = &models.StockEntry{OptionID: optionID, Quantity: quantity, UpdatedAt: time.Now().UTC()}
	if _, ok := s.stockLocks[optionID]; !ok {
		s.stockLocks[optionID] = &sync.Mutex{}
	}
}

// SeedCartItem adds a cart line
func (s *MemoryStore) SeedCartItem(userID, optionID int64, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCartID++
	s.cart[s.nextCartID] = &models.CartItem{ID: s.nextCartID, UserID: userID, OptionID: optionID, Quantity: quantity}
}

// CartItems returns the user's cart lines ordered by option
func (s *MemoryStore) CartItems(userID int64) []models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []models.CartItem
	for _, item := range s.cart {
		if item.UserID == userID {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].OptionID < items[j].OptionID })
	return items
}

// GetOrder returns a copy of an order by ID
func (s *MemoryStore) GetOrder(id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	clone := *order
	return &clone, nil
}

// WithinTx runs fn with a transaction-scoped repository. Writes apply
// immediately and are undone in reverse order if fn fails.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	tx := &memoryTx{s: s, held: make(map[int64]*sync.Mutex), heldOrders: make(map[int64]*sync.Mutex)}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// GetPaymentByID retrieves a payment by ID
func (s *MemoryStore) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getPayment(id)
}

// GetPaymentsByOrderNo retrieves every settlement attempt of an order, newest first
func (s *MemoryStore) GetPaymentsByOrderNo(ctx context.Context, orderNo string) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orderID int64
	for _, order := range s.orders {
		if order.OrderNo == orderNo {
			orderID = order.ID
			break
		}
	}

	var payments []models.Payment
	for _, payment := range s.payments {
		if payment.OrderID == orderID {
			payments = append(payments, clonePayment(payment))
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].ID > payments[j].ID })
	return payments, nil
}

// GetPaymentLogs retrieves a payment's audit trail in append order
func (s *MemoryStore) GetPaymentLogs(ctx context.Context, paymentID int64) ([]models.PaymentLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var logs []models.PaymentLog
	for _, entry := range s.logs {
		if entry.PaymentID == paymentID {
			logs = append(logs, entry)
		}
	}
	return logs, nil
}

// GetPaymentLogsByEventType retrieves the latest log entries of one kind
func (s *MemoryStore) GetPaymentLogsByEventType(ctx context.Context, eventType string, limit int) ([]models.PaymentLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var logs []models.PaymentLog
	for i := len(s.logs) - 1; i >= 0 && len(logs) < limit; i-- {
		if s.logs[i].EventType == eventType {
			logs = append(logs, s.logs[i])
		}
	}
	return logs, nil
}

// GetStock retrieves the ledger entry of an option without locking it
func (s *MemoryStore) GetStock(ctx context.Context, optionID int64) (*models.StockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.stock[optionID]
	if !ok {
		return nil, fmt.Errorf("stock entry %d: %w", optionID, ErrNotFound)
	}
	clone := *entry
	return &clone, nil
}

// ListStock retrieves every ledger entry
func (s *MemoryStore) ListStock(ctx context.Context) ([]models.StockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]models.StockEntry, 0, len(s.stock))
	for _, entry := range s.stock {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].OptionID < entries[j].OptionID })
	return entries, nil
}

func (s *MemoryStore) getPayment(id int64) (*models.Payment, error) {
	payment, ok := s.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}
	clone := clonePayment(payment)
	return &clone, nil
}

func (s *MemoryStore) orderLockFor(orderNo string) (int64, *sync.Mutex, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, order := range s.orders {
		if order.OrderNo == orderNo {
			return id, s.orderLocks[id], true
		}
	}
	return 0, nil, false
}

func (s *MemoryStore) lockFor(optionID int64) (*sync.Mutex, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.stockLocks[optionID]
	return lock, ok
}

func clonePayment(p *models.Payment) models.Payment {
	clone := *p
	if p.GatewayTxID != nil {
		v := *p.GatewayTxID
		clone.GatewayTxID = &v
	}
	if p.Method != nil {
		v := *p.Method
		clone.Method = &v
	}
	if p.ApprovedAt != nil {
		v := *p.ApprovedAt
		clone.ApprovedAt = &v
	}
	if p.FailureReason != nil {
		v := *p.FailureReason
		clone.FailureReason = &v
	}
	return clone
}

// memoryTx is the Repository handed to WithinTx callbacks
type memoryTx struct {
	s          *MemoryStore
	held       map[int64]*sync.Mutex
	heldOrders map[int64]*sync.Mutex
	undo       []func()
}

func (tx *memoryTx) release() {
	for _, lock := range tx.held {
		lock.Unlock()
	}
	for _, lock := range tx.heldOrders {
		lock.Unlock()
	}
	tx.held, tx.heldOrders = nil, nil
}

func (tx *memoryTx) rollback() {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// GetOrderByOrderNo locks the order until the transaction ends and returns
// its state as seen after the lock is taken.
func (tx *memoryTx) GetOrderByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	id, lock, ok := tx.s.orderLockFor(orderNo)
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderNo, ErrNotFound)
	}
	if _, held := tx.heldOrders[id]; !held {
		lock.Lock()
		tx.heldOrders[id] = lock
	}

	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	clone := *tx.s.orders[id]
	return &clone, nil
}

func (tx *memoryTx) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	items := append([]models.OrderItem(nil), tx.s.orderItems[orderID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].OptionID < items[j].OptionID })
	return items, nil
}

func (tx *memoryTx) UpdateOrderSettlement(ctx context.Context, orderID int64, status string, settleable bool) error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	order, ok := tx.s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	prev := *order
	order.Status = status
	order.IsSettleable = settleable
	order.UpdatedAt = time.Now().UTC()
	tx.undo = append(tx.undo, func() { *order = prev })
	return nil
}

func (tx *memoryTx) LockStock(ctx context.Context, optionID int64) (*models.StockEntry, error) {
	if _, ok := tx.held[optionID]; !ok {
		lock, exists := tx.s.lockFor(optionID)
		if !exists {
			return nil, fmt.Errorf("stock entry %d: %w", optionID, ErrNotFound)
		}
		lock.Lock()
		tx.held[optionID] = lock
	}

	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	clone := *tx.s.stock[optionID]
	return &clone, nil
}

func (tx *memoryTx) UpdateStockQuantity(ctx context.Context, optionID int64, quantity int) error {
	if _, ok := tx.held[optionID]; !ok {
		return fmt.Errorf("stock entry %d updated without holding its lock", optionID)
	}
	if quantity < 0 {
		return fmt.Errorf("stock entry %d: quantity cannot be negative (%d)", optionID, quantity)
	}

	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	entry := tx.s.stock[optionID]
	prev := *entry
	entry.Quantity = quantity
	entry.UpdatedAt = time.Now().UTC()
	tx.undo = append(tx.undo, func() { *entry = prev })
	return nil
}

func (tx *memoryTx) CreatePayment(ctx context.Context, payment *models.Payment) error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	tx.s.nextPaymentID++
	payment.ID = tx.s.nextPaymentID
	now := time.Now().UTC()
	payment.CreatedAt, payment.UpdatedAt = now, now

	stored := clonePayment(payment)
	tx.s.payments[payment.ID] = &stored
	id := payment.ID
	tx.undo = append(tx.undo, func() { delete(tx.s.payments, id) })
	return nil
}

func (tx *memoryTx) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	return tx.s.getPayment(id)
}

func (tx *memoryTx) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	current, ok := tx.s.payments[payment.ID]
	if !ok {
		return fmt.Errorf("payment %d: %w", payment.ID, ErrNotFound)
	}
	prev := clonePayment(current)
	next := clonePayment(payment)
	next.UpdatedAt = time.Now().UTC()
	tx.s.payments[payment.ID] = &next
	tx.undo = append(tx.undo, func() { tx.s.payments[prev.ID] = &prev })
	return nil
}

func (tx *memoryTx) AppendPaymentLog(ctx context.Context, entry *models.PaymentLog) error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	if _, ok := tx.s.payments[entry.PaymentID]; !ok {
		return fmt.Errorf("payment %d: %w", entry.PaymentID, ErrNotFound)
	}
	tx.s.nextLogID++
	entry.ID = tx.s.nextLogID
	tx.s.logs = append(tx.s.logs, *entry)
	id := entry.ID
	tx.undo = append(tx.undo, func() {
		for i := range tx.s.logs {
			if tx.s.logs[i].ID == id {
				tx.s.logs = append(tx.s.logs[:i], tx.s.logs[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (tx *memoryTx) DeleteCartItems(ctx context.Context, userID int64, optionIDs []int64) (int64, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	wanted := make(map[int64]bool, len(optionIDs))
	for _, id := range optionIDs {
		wanted[id] = true
	}

	var deleted int64
	for id, item := range tx.s.cart {
		if item.UserID == userID && wanted[item.OptionID] {
			removed := *item
			delete(tx.s.cart, id)
			tx.undo = append(tx.undo, func() { tx.s.cart[removed.ID] = &removed })
			deleted++
		}
	}
	return deleted, nil
}
