// Package chain abstracts the external blockchain collaborator used to anchor
// batch records. Recording is best-effort: local state is the source of truth
// and a failed or absent recorder never blocks domain operations.
package chain

import (
	"context"
	"fmt"
	"sync"

	"agrichain/pkg/domain"
)

// Recorder submits batch records to an external ledger.
type Recorder interface {
	// RecordBatch submits the batch and returns the recording outcome.
	// A failed submission is reported in the result, not as an error;
	// the error return is reserved for programmer mistakes such as a
	// missing batch id.
	RecordBatch(ctx context.Context, batch domain.Batch, userID string) (RecordResult, error)
	// Connected reports whether the recorder has a usable backend.
	Connected() bool
}

// RecordResult is the outcome of one recording attempt.
type RecordResult struct {
	Success     bool   `json:"success"`
	BatchID     string `json:"batch_id"`
	TxHash      string `json:"tx_hash,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	Err         string `json:"error,omitempty"`
}

// NullRecorder is the offline recorder. Every attempt reports a clean
// failure so callers fall through to local-only behavior.
type NullRecorder struct{}

// RecordBatch always reports an unavailable backend.
func (NullRecorder) RecordBatch(_ context.Context, batch domain.Batch, _ string) (RecordResult, error) {
	if batch.ID == "" {
		return RecordResult{}, fmt.Errorf("batch id required")
	}
	return RecordResult{
		Success: false,
		BatchID: batch.ID,
		Err:     "blockchain backend not configured",
	}, nil
}

// Connected always reports false.
func (NullRecorder) Connected() bool { return false }

// MemoryRecorder is an in-process recorder for tests and demos. It fabricates
// deterministic transaction hashes and remembers every recorded batch.
type MemoryRecorder struct {
	mu       sync.Mutex
	seq      int
	recorded map[string]RecordResult
	// FailNext forces the next attempt to report failure.
	FailNext bool
	// ExplorerBase prefixes fabricated explorer links when set.
	ExplorerBase string
}

// NewMemoryRecorder returns an empty in-process recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{recorded: make(map[string]RecordResult)}
}

// RecordBatch fabricates a transaction hash and stores the result.
func (r *MemoryRecorder) RecordBatch(_ context.Context, batch domain.Batch, _ string) (RecordResult, error) {
	if batch.ID == "" {
		return RecordResult{}, fmt.Errorf("batch id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailNext {
		r.FailNext = false
		return RecordResult{Success: false, BatchID: batch.ID, Err: "simulated recording failure"}, nil
	}
	r.seq++
	res := RecordResult{
		Success: true,
		BatchID: batch.ID,
		TxHash:  fmt.Sprintf("0x%08x", r.seq),
	}
	if r.ExplorerBase != "" {
		res.ExplorerURL = r.ExplorerBase + "/tx/" + res.TxHash
	}
	r.recorded[batch.ID] = res
	return res, nil
}

// Connected always reports true.
func (r *MemoryRecorder) Connected() bool { return true }

// Recorded returns the stored result for a batch, if any.
func (r *MemoryRecorder) Recorded(batchID string) (RecordResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.recorded[batchID]
	return res, ok
}
