// Package memory provides the transactional in-memory implementation of the
// core persistence store, used directly for tests and ephemeral environments
// and embedded by the durable backends.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"agrichain/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Batch aliases domain.Batch for in-memory persistence operations.
	Batch = domain.Batch
	// Product aliases domain.Product.
	Product = domain.Product
	// Order aliases domain.Order.
	Order = domain.Order
	// InventoryItem aliases domain.InventoryItem.
	InventoryItem = domain.InventoryItem
	// Notification aliases domain.Notification.
	Notification = domain.Notification
	// NotificationSettings aliases domain.NotificationSettings.
	NotificationSettings = domain.NotificationSettings
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	batches       map[string]Batch
	products      map[string]Product
	orders        map[string]Order
	inventory     map[string]InventoryItem
	notifications map[string]Notification
	settings      map[string]NotificationSettings
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Batches       map[string]Batch                `json:"batches"`
	Products      map[string]Product              `json:"products"`
	Orders        map[string]Order                `json:"orders"`
	Inventory     map[string]InventoryItem        `json:"inventory"`
	Notifications map[string]Notification         `json:"notifications"`
	Settings      map[string]NotificationSettings `json:"settings"`
}

func newMemoryState() memoryState {
	return memoryState{
		batches:       make(map[string]Batch),
		products:      make(map[string]Product),
		orders:        make(map[string]Order),
		inventory:     make(map[string]InventoryItem),
		notifications: make(map[string]Notification),
		settings:      make(map[string]NotificationSettings),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.batches {
		cloned.batches[k] = cloneBatch(v)
	}
	for k, v := range s.products {
		cloned.products[k] = v
	}
	for k, v := range s.orders {
		cloned.orders[k] = cloneOrder(v)
	}
	for k, v := range s.inventory {
		cloned.inventory[k] = cloneInventoryItem(v)
	}
	for k, v := range s.notifications {
		cloned.notifications[k] = v
	}
	for k, v := range s.settings {
		cloned.settings[k] = v
	}
	return cloned
}

func cloneBatch(b Batch) Batch {
	cp := b
	if b.Chain != nil {
		chain := *b.Chain
		cp.Chain = &chain
	}
	return cp
}

func cloneOrder(o Order) Order {
	cp := o
	cp.FarmerID = cloneStringPtr(o.FarmerID)
	cp.ProcessorID = cloneStringPtr(o.ProcessorID)
	cp.DistributorID = cloneStringPtr(o.DistributorID)
	cp.ConsumerID = cloneStringPtr(o.ConsumerID)
	cp.BatchID = cloneStringPtr(o.BatchID)
	cp.ProductID = cloneStringPtr(o.ProductID)
	cp.StockAppliedAt = cloneTimePtr(o.StockAppliedAt)
	cp.Delivery.Date = cloneTimePtr(o.Delivery.Date)
	return cp
}

func cloneInventoryItem(i InventoryItem) InventoryItem {
	cp := i
	cp.StockHistory = append([]domain.StockEvent(nil), i.StockHistory...)
	return cp
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the transaction timestamp source, for tests.
func (s *Store) SetClock(nowFn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// transaction applies a mutation set against a cloned copy of store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

var _ Transaction = (*transaction)(nil)

// view exposes a read-only snapshot of transactional state.
type view struct {
	state *memoryState
}

var _ TransactionView = view{}

// RunInTransaction executes fn within a transactional copy of the store
// state. Rules are evaluated against the mutated snapshot before commit;
// blocking violations abort with RuleViolationError and leave committed
// state untouched.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &tx.state}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(view{state: &snapshot})
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view of the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return view{state: &tx.state}
}

// CreateBatch stores a new batch within the transaction.
func (tx *transaction) CreateBatch(b Batch) (Batch, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.batches[b.ID]; exists {
		return Batch{}, fmt.Errorf("batch %q already exists", b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.batches[b.ID] = cloneBatch(b)
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionCreate, After: cloneBatch(b)})
	return cloneBatch(b), nil
}

// UpdateBatch mutates a batch using the provided mutator function.
func (tx *transaction) UpdateBatch(id string, mutator func(*Batch) error) (Batch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return Batch{}, fmt.Errorf("batch %q not found", id)
	}
	before := cloneBatch(current)
	if err := mutator(&current); err != nil {
		return Batch{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.batches[id] = cloneBatch(current)
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionUpdate, Before: before, After: cloneBatch(current)})
	return cloneBatch(current), nil
}

// CreateProduct stores a new product.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.products[p.ID]; exists {
		return Product{}, fmt.Errorf("product %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.products[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdateProduct mutates an existing product.
func (tx *transaction) UpdateProduct(id string, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Product{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.products[id] = current
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateOrder stores a new order.
func (tx *transaction) CreateOrder(o Order) (Order, error) {
	if o.ID == "" {
		o.ID = tx.store.newID()
	}
	if _, exists := tx.state.orders[o.ID]; exists {
		return Order{}, fmt.Errorf("order %q already exists", o.ID)
	}
	o.CreatedAt = tx.now
	o.UpdatedAt = tx.now
	tx.state.orders[o.ID] = cloneOrder(o)
	tx.recordChange(Change{Entity: domain.EntityOrder, Action: domain.ActionCreate, After: cloneOrder(o)})
	return cloneOrder(o), nil
}

// UpdateOrder mutates an existing order.
func (tx *transaction) UpdateOrder(id string, mutator func(*Order) error) (Order, error) {
	current, ok := tx.state.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %q not found", id)
	}
	before := cloneOrder(current)
	if err := mutator(&current); err != nil {
		return Order{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.orders[id] = cloneOrder(current)
	tx.recordChange(Change{Entity: domain.EntityOrder, Action: domain.ActionUpdate, Before: before, After: cloneOrder(current)})
	return cloneOrder(current), nil
}

// PutInventoryItem upserts an inventory record by composite key, replacing
// any existing record wholesale. History is whatever the caller supplies;
// re-initialization is intentionally destructive.
func (tx *transaction) PutInventoryItem(item InventoryItem) (InventoryItem, error) {
	if item.ItemID == "" || item.OwnerID == "" {
		return InventoryItem{}, fmt.Errorf("inventory item requires item and owner ids")
	}
	key := item.Key()
	action := domain.ActionCreate
	var before any
	if prev, exists := tx.state.inventory[key]; exists {
		action = domain.ActionUpdate
		before = cloneInventoryItem(prev)
		item.CreatedAt = prev.CreatedAt
	} else {
		item.CreatedAt = tx.now
	}
	item.LastUpdated = tx.now
	tx.state.inventory[key] = cloneInventoryItem(item)
	tx.recordChange(Change{Entity: domain.EntityInventoryItem, Action: action, Before: before, After: cloneInventoryItem(item)})
	return cloneInventoryItem(item), nil
}

// UpdateInventoryItem mutates an inventory record addressed by composite key.
func (tx *transaction) UpdateInventoryItem(itemID, ownerID string, mutator func(*InventoryItem) error) (InventoryItem, error) {
	key := domain.InventoryKey(itemID, ownerID)
	current, ok := tx.state.inventory[key]
	if !ok {
		return InventoryItem{}, fmt.Errorf("inventory item %q not found", key)
	}
	before := cloneInventoryItem(current)
	if err := mutator(&current); err != nil {
		return InventoryItem{}, err
	}
	current.ItemID = itemID
	current.OwnerID = ownerID
	current.LastUpdated = tx.now
	tx.state.inventory[key] = cloneInventoryItem(current)
	tx.recordChange(Change{Entity: domain.EntityInventoryItem, Action: domain.ActionUpdate, Before: before, After: cloneInventoryItem(current)})
	return cloneInventoryItem(current), nil
}

// CreateNotification stores a new notification record.
func (tx *transaction) CreateNotification(n Notification) (Notification, error) {
	if n.ID == "" {
		n.ID = tx.store.newID()
	}
	if _, exists := tx.state.notifications[n.ID]; exists {
		return Notification{}, fmt.Errorf("notification %q already exists", n.ID)
	}
	if n.Metadata.Priority == "" {
		n.Metadata.Priority = domain.PriorityNormal
	}
	n.CreatedAt = tx.now
	n.UpdatedAt = tx.now
	tx.state.notifications[n.ID] = n
	tx.recordChange(Change{Entity: domain.EntityNotification, Action: domain.ActionCreate, After: n})
	return n, nil
}

// UpdateNotification mutates a notification record.
func (tx *transaction) UpdateNotification(id string, mutator func(*Notification) error) (Notification, error) {
	current, ok := tx.state.notifications[id]
	if !ok {
		return Notification{}, fmt.Errorf("notification %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Notification{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.notifications[id] = current
	tx.recordChange(Change{Entity: domain.EntityNotification, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteNotification removes a notification from state.
func (tx *transaction) DeleteNotification(id string) error {
	current, ok := tx.state.notifications[id]
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	delete(tx.state.notifications, id)
	tx.recordChange(Change{Entity: domain.EntityNotification, Action: domain.ActionDelete, Before: current})
	return nil
}

// PutNotificationSettings upserts a per-user settings record.
func (tx *transaction) PutNotificationSettings(settings NotificationSettings) (NotificationSettings, error) {
	if settings.UserID == "" {
		return NotificationSettings{}, fmt.Errorf("notification settings require a user id")
	}
	action := domain.ActionCreate
	var before any
	if prev, exists := tx.state.settings[settings.UserID]; exists {
		action = domain.ActionUpdate
		before = prev
	}
	settings.UpdatedAt = tx.now
	tx.state.settings[settings.UserID] = settings
	tx.recordChange(Change{Entity: domain.EntityNotificationSettings, Action: action, Before: before, After: settings})
	return settings, nil
}

// FindBatch retrieves a batch by ID from the transaction snapshot.
func (tx *transaction) FindBatch(id string) (Batch, bool) {
	return view{state: &tx.state}.FindBatch(id)
}

// FindProduct retrieves a product by ID from the transaction snapshot.
func (tx *transaction) FindProduct(id string) (Product, bool) {
	return view{state: &tx.state}.FindProduct(id)
}

// FindOrder retrieves an order by ID from the transaction snapshot.
func (tx *transaction) FindOrder(id string) (Order, bool) {
	return view{state: &tx.state}.FindOrder(id)
}

// FindInventoryItem retrieves an inventory record from the transaction snapshot.
func (tx *transaction) FindInventoryItem(itemID, ownerID string) (InventoryItem, bool) {
	return view{state: &tx.state}.FindInventoryItem(itemID, ownerID)
}

// ListBatches returns all batches within the snapshot.
func (v view) ListBatches() []Batch {
	out := make([]Batch, 0, len(v.state.batches))
	for _, b := range v.state.batches {
		out = append(out, cloneBatch(b))
	}
	return out
}

// ListProducts returns all products within the snapshot.
func (v view) ListProducts() []Product {
	out := make([]Product, 0, len(v.state.products))
	for _, p := range v.state.products {
		out = append(out, p)
	}
	return out
}

// ListOrders returns all orders within the snapshot.
func (v view) ListOrders() []Order {
	out := make([]Order, 0, len(v.state.orders))
	for _, o := range v.state.orders {
		out = append(out, cloneOrder(o))
	}
	return out
}

// ListInventoryItems returns all inventory records within the snapshot.
func (v view) ListInventoryItems() []InventoryItem {
	out := make([]InventoryItem, 0, len(v.state.inventory))
	for _, i := range v.state.inventory {
		out = append(out, cloneInventoryItem(i))
	}
	return out
}

// ListNotifications returns all notifications within the snapshot.
func (v view) ListNotifications() []Notification {
	out := make([]Notification, 0, len(v.state.notifications))
	for _, n := range v.state.notifications {
		out = append(out, n)
	}
	return out
}

// FindBatch retrieves a batch by ID.
func (v view) FindBatch(id string) (Batch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return cloneBatch(b), true
}

// FindProduct retrieves a product by ID.
func (v view) FindProduct(id string) (Product, bool) {
	p, ok := v.state.products[id]
	return p, ok
}

// FindOrder retrieves an order by ID.
func (v view) FindOrder(id string) (Order, bool) {
	o, ok := v.state.orders[id]
	if !ok {
		return Order{}, false
	}
	return cloneOrder(o), true
}

// FindInventoryItem retrieves an inventory record by composite key.
func (v view) FindInventoryItem(itemID, ownerID string) (InventoryItem, bool) {
	i, ok := v.state.inventory[domain.InventoryKey(itemID, ownerID)]
	if !ok {
		return InventoryItem{}, false
	}
	return cloneInventoryItem(i), true
}

// NotificationSettingsFor retrieves a user's settings record.
func (v view) NotificationSettingsFor(userID string) (NotificationSettings, bool) {
	s, ok := v.state.settings[userID]
	return s, ok
}

// Read helpers against committed state --------------------------------------

// FindBatch retrieves a batch by ID from committed state.
func (s *Store) FindBatch(id string) (Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.FindBatch(id)
}

// FindProduct retrieves a product by ID from committed state.
func (s *Store) FindProduct(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.FindProduct(id)
}

// FindOrder retrieves an order by ID from committed state.
func (s *Store) FindOrder(id string) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.FindOrder(id)
}

// FindInventoryItem retrieves an inventory record from committed state.
func (s *Store) FindInventoryItem(itemID, ownerID string) (InventoryItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.FindInventoryItem(itemID, ownerID)
}

// ListBatches returns all batches from committed state.
func (s *Store) ListBatches() []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListBatches()
}

// ListProducts returns all products from committed state.
func (s *Store) ListProducts() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListProducts()
}

// ListOrders returns all orders from committed state.
func (s *Store) ListOrders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListOrders()
}

// ListInventoryItems returns all inventory records from committed state.
func (s *Store) ListInventoryItems() []InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListInventoryItems()
}

// ListNotifications returns all notifications from committed state.
func (s *Store) ListNotifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListNotifications()
}

// NotificationSettingsFor retrieves a user's settings from committed state.
func (s *Store) NotificationSettingsFor(userID string) (NotificationSettings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.NotificationSettingsFor(userID)
}

// ExportState returns a deep snapshot of committed state for persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Batches:       make(map[string]Batch, len(s.state.batches)),
		Products:      make(map[string]Product, len(s.state.products)),
		Orders:        make(map[string]Order, len(s.state.orders)),
		Inventory:     make(map[string]InventoryItem, len(s.state.inventory)),
		Notifications: make(map[string]Notification, len(s.state.notifications)),
		Settings:      make(map[string]NotificationSettings, len(s.state.settings)),
	}
	for k, v := range s.state.batches {
		snap.Batches[k] = cloneBatch(v)
	}
	for k, v := range s.state.products {
		snap.Products[k] = v
	}
	for k, v := range s.state.orders {
		snap.Orders[k] = cloneOrder(v)
	}
	for k, v := range s.state.inventory {
		snap.Inventory[k] = cloneInventoryItem(v)
	}
	for k, v := range s.state.notifications {
		snap.Notifications[k] = v
	}
	for k, v := range s.state.settings {
		snap.Settings[k] = v
	}
	return snap
}

// ImportState replaces committed state with the provided snapshot.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snap.Batches {
		state.batches[k] = cloneBatch(v)
	}
	for k, v := range snap.Products {
		state.products[k] = v
	}
	for k, v := range snap.Orders {
		state.orders[k] = cloneOrder(v)
	}
	for k, v := range snap.Inventory {
		state.inventory[k] = cloneInventoryItem(v)
	}
	for k, v := range snap.Notifications {
		state.notifications[k] = v
	}
	for k, v := range snap.Settings {
		state.settings[k] = v
	}
	s.state = state
}
