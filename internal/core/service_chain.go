package core

import (
	"context"
	"fmt"

	"agrichain/internal/chain"
	"agrichain/pkg/domain"
)

// RecordBatchOnChain submits the batch to the blockchain collaborator. Local
// state is the source of truth: a failed or unavailable recorder leaves the
// batch untouched and the failure is reported in the result, not as an error.
// On success the batch's chain fields are filled and the requesting user
// receives a system notification.
func (s *Service) RecordBatchOnChain(ctx context.Context, batchID, userID string) (chain.RecordResult, Result, error) {
	ctx, done := s.instrument(ctx, "record_batch_on_chain")
	batch, ok := s.store.FindBatch(batchID)
	if !ok {
		err := fmt.Errorf("batch %q not found", batchID)
		done(err)
		return chain.RecordResult{}, Result{}, err
	}

	recorded, err := s.chain.RecordBatch(ctx, batch, userID)
	if err != nil {
		done(err)
		return chain.RecordResult{}, Result{}, err
	}
	if !recorded.Success {
		done(nil)
		return recorded, Result{}, nil
	}

	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		recordedAt := s.now()
		if _, err := tx.UpdateBatch(batchID, func(b *Batch) error {
			b.Chain = &domain.ChainRecord{
				TxHash:      recorded.TxHash,
				ExplorerURL: recorded.ExplorerURL,
				RecordedAt:  recordedAt,
			}
			return nil
		}); err != nil {
			return err
		}
		if userID == "" {
			return nil
		}
		_, err := tx.CreateNotification(Notification{
			UserID:  userID,
			Type:    domain.NotificationSystem,
			Title:   "Batch recorded on chain",
			Message: fmt.Sprintf("Batch %s was anchored with transaction %s", batchID, recorded.TxHash),
			Metadata: NotificationMeta{
				Priority: domain.PriorityNormal,
				ItemID:   batchID,
			},
		})
		return err
	})
	done(err)
	return recorded, res, err
}

// ChainConnected reports whether the blockchain collaborator is usable.
func (s *Service) ChainConnected() bool {
	return s.chain.Connected()
}
