package core

import (
	"context"
	"fmt"
	"time"

	"agrichain/internal/chain"
	"agrichain/internal/infra/persistence/memory"
	"agrichain/pkg/domain"
)

// Service exposes the transactional operations of the supply-chain core:
// catalog records, orders, per-owner inventory, notifications, and chain
// anchoring.
type Service struct {
	store   PersistentStore
	chain   chain.Recorder
	metrics MetricsRecorder
	tracer  Tracer
	nowFn   func() time.Time
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithChainRecorder injects the blockchain collaborator. Defaults to the
// offline NullRecorder.
func WithChainRecorder(rec chain.Recorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.chain = rec
		}
	}
}

// WithMetricsRecorder injects a metrics sink observed around every operation.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = rec }
}

// WithTracer injects a tracer that spans every operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) { s.tracer = tracer }
}

// WithClock overrides the service time source, for tests.
func WithClock(nowFn func() time.Time) ServiceOption {
	return func(s *Service) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store: store,
		chain: chain.NullRecorder{},
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

func (s *Service) now() time.Time {
	return s.nowFn()
}

// instrument starts a span and returns the completion callback that reports
// the outcome to the tracer and metrics recorder.
func (s *Service) instrument(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	return ctx, func(err error) {
		if span != nil {
			span.End(err)
		}
		if s.metrics != nil {
			s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
		}
	}
}

// CreateBatch persists a farmer batch and initializes the farmer's inventory
// record for it in the same transaction.
func (s *Service) CreateBatch(ctx context.Context, batch Batch) (Batch, Result, error) {
	ctx, done := s.instrument(ctx, "create_batch")
	var created Batch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateBatch(batch)
		if err != nil {
			return err
		}
		if created.FarmerID == "" {
			return nil
		}
		item, err := s.initializeInventory(tx, created.ID, domain.ItemBatch, created.Quantity, created.FarmerID, RoleFarmer)
		if err != nil {
			return err
		}
		return s.maybeLowStockAlert(tx, item)
	})
	done(err)
	return created, res, err
}

// UpdateBatch mutates a batch using the provided mutator.
func (s *Service) UpdateBatch(ctx context.Context, id string, mutator func(*Batch) error) (Batch, Result, error) {
	ctx, done := s.instrument(ctx, "update_batch")
	var updated Batch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateBatch(id, mutator)
		return err
	})
	done(err)
	return updated, res, err
}

// CreateProduct persists a processor product and initializes the processor's
// inventory record for it in the same transaction.
func (s *Service) CreateProduct(ctx context.Context, product Product) (Product, Result, error) {
	ctx, done := s.instrument(ctx, "create_product")
	var created Product
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if product.BatchID != "" {
			if _, ok := tx.FindBatch(product.BatchID); !ok {
				return fmt.Errorf("batch %q not found", product.BatchID)
			}
		}
		var err error
		created, err = tx.CreateProduct(product)
		if err != nil {
			return err
		}
		if created.ProcessorID == "" {
			return nil
		}
		item, err := s.initializeInventory(tx, created.ID, domain.ItemProduct, created.Quantity, created.ProcessorID, RoleProcessor)
		if err != nil {
			return err
		}
		return s.maybeLowStockAlert(tx, item)
	})
	done(err)
	return created, res, err
}

// UpdateProduct mutates a product using the provided mutator.
func (s *Service) UpdateProduct(ctx context.Context, id string, mutator func(*Product) error) (Product, Result, error) {
	ctx, done := s.instrument(ctx, "update_product")
	var updated Product
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateProduct(id, mutator)
		return err
	})
	done(err)
	return updated, res, err
}

// FindBatch returns the batch with the given id.
func (s *Service) FindBatch(id string) (Batch, bool) {
	return s.store.FindBatch(id)
}

// FindProduct returns the product with the given id.
func (s *Service) FindProduct(id string) (Product, bool) {
	return s.store.FindProduct(id)
}

// ListBatches returns all batches.
func (s *Service) ListBatches() []Batch {
	return s.store.ListBatches()
}

// ListProducts returns all products.
func (s *Service) ListProducts() []Product {
	return s.store.ListProducts()
}

// BatchesByFarmer returns the batches belonging to one farmer.
func (s *Service) BatchesByFarmer(farmerID string) []Batch {
	var out []Batch
	for _, b := range s.store.ListBatches() {
		if b.FarmerID == farmerID {
			out = append(out, b)
		}
	}
	return out
}

// ProductsByProcessor returns the products belonging to one processor.
func (s *Service) ProductsByProcessor(processorID string) []Product {
	var out []Product
	for _, p := range s.store.ListProducts() {
		if p.ProcessorID == processorID {
			out = append(out, p)
		}
	}
	return out
}
