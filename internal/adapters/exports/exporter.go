// Package exports renders order and batch reports asynchronously and stores
// the artifacts in a blob store.
package exports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"agrichain/internal/blob"
	"agrichain/pkg/domain"
)

// ReportKind names one of the fixed report templates.
type ReportKind string

const (
	// ReportOrders renders the full order collection.
	ReportOrders ReportKind = "orders"
	// ReportBatches renders the batch catalog with chain anchors.
	ReportBatches ReportKind = "batches"
)

// Format identifies an artifact encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact captures one stored report artifact.
type ExportArtifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Rows        int       `json:"rows"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExportRecord tracks an export request and resulting artifacts.
type ExportRecord struct {
	ID          string           `json:"id"`
	Report      ReportKind       `json:"report"`
	Formats     []Format         `json:"formats"`
	Status      ExportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []ExportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// ExportInput represents an enqueue request for the worker.
type ExportInput struct {
	Report      ReportKind
	Formats     []Format
	RequestedBy string
}

// Source provides the record collections the reports render.
type Source interface {
	ListOrders() []domain.Order
	ListBatches() []domain.Batch
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string       `json:"id"`
	Action     string       `json:"action"`
	Actor      string       `json:"actor"`
	Report     ReportKind   `json:"report"`
	Status     ExportStatus `json:"status"`
	Note       string       `json:"note,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Worker executes report exports asynchronously.
type Worker struct {
	source Source
	store  blob.Store
	audit  AuditLogger

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

// NewWorker constructs an export worker over the given record source and
// artifact store. The audit logger may be nil.
func NewWorker(source Source, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		store:  store,
		audit:  audit,
		queue:  make(chan exportTask, 32),
		jobs:   make(map[string]*ExportRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.source == nil {
		return ExportRecord{}, fmt.Errorf("export source not configured")
	}
	switch input.Report {
	case ReportOrders, ReportBatches:
	default:
		return ExportRecord{}, fmt.Errorf("unknown report %s", input.Report)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if _, dup := seen[format]; dup {
			continue
		}
		if format != FormatCSV && format != FormatJSON {
			return ExportRecord{}, fmt.Errorf("unsupported export format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		Report:      input.Report,
		Formats:     uniq,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.recordAudit(ctx, input.RequestedBy, input.Report, ExportStatusQueued, "")

	select {
	case w.queue <- exportTask{id: id, input: input}:
	default:
		return ExportRecord{}, fmt.Errorf("export queue full")
	}

	return queued, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	w.updateStatus(task.id, ExportStatusRunning, "")

	headers, rows := w.render(task.input.Report)
	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}

	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, contentType, err := encode(format, headers, rows)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		artifact := ExportArtifact{
			Key:         fmt.Sprintf("exports/%s/%s.%s", record.Report, task.id, format),
			Format:      format,
			ContentType: contentType,
			SizeBytes:   int64(len(payload)),
			Rows:        len(rows),
			CreatedAt:   time.Now().UTC(),
		}
		if w.store != nil {
			info, err := w.store.Put(w.ctx, artifact.Key, bytes.NewReader(payload), blob.PutOptions{
				ContentType: contentType,
				Metadata:    map[string]string{"report": string(record.Report), "rows": strconv.Itoa(len(rows))},
			})
			if err != nil {
				w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
				return
			}
			artifact.URL = info.URL
			if info.Size > 0 {
				artifact.SizeBytes = info.Size
			}
		}
		artifacts = append(artifacts, artifact)
	}

	w.complete(task.id, artifacts)
}

func (w *Worker) render(report ReportKind) ([]string, [][]string) {
	switch report {
	case ReportBatches:
		headers := []string{"id", "farmer_id", "crop_type", "quantity", "unit", "harvest_date", "status", "tx_hash"}
		batches := w.source.ListBatches()
		rows := make([][]string, 0, len(batches))
		for _, b := range batches {
			txHash := ""
			if b.Chain != nil {
				txHash = b.Chain.TxHash
			}
			rows = append(rows, []string{
				b.ID, b.FarmerID, b.CropType,
				formatFloat(b.Quantity), b.Unit,
				b.HarvestDate.UTC().Format(time.RFC3339),
				b.Status, txHash,
			})
		}
		return headers, rows
	default:
		headers := []string{"id", "type", "status", "seller_id", "buyer_id", "item_id", "quantity", "unit", "total_amount", "created_at"}
		orders := w.source.ListOrders()
		rows := make([][]string, 0, len(orders))
		for _, o := range orders {
			sellerID, _, _ := o.SellerID()
			buyerID, _, _ := o.BuyerID()
			itemID, _, _ := o.ItemRef()
			rows = append(rows, []string{
				o.ID, string(o.Type), string(o.Status),
				sellerID, buyerID, itemID,
				formatFloat(o.Quantity), o.Unit,
				formatFloat(o.TotalAmount),
				o.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		return headers, rows
	}
}

func encode(format Format, headers []string, rows [][]string) ([]byte, string, error) {
	switch format {
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write(headers); err != nil {
			return nil, "", err
		}
		for _, row := range rows {
			if err := writer.Write(row); err != nil {
				return nil, "", err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	case FormatJSON:
		objects := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			obj := make(map[string]string, len(headers))
			for i, header := range headers {
				if i < len(row) {
					obj[header] = row[i]
				}
			}
			objects = append(objects, obj)
		}
		payload, err := json.Marshal(objects)
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		return payload, "application/json", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %s", format)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (w *Worker) updateStatus(id string, status ExportStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	var actor string
	var report ReportKind
	if ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
		actor = record.RequestedBy
		report = record.Report
	}
	w.mu.Unlock()
	if ok {
		w.recordAudit(w.ctx, actor, report, status, message)
	}
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	var actor string
	var report ReportKind
	if ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor = record.RequestedBy
		report = record.Report
	}
	w.mu.Unlock()
	if ok {
		w.recordAudit(w.ctx, actor, report, ExportStatusSucceeded, "")
	}
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	var actor string
	var report ReportKind
	if ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor = record.RequestedBy
		report = record.Report
	}
	w.mu.Unlock()
	if ok {
		w.recordAudit(w.ctx, actor, report, ExportStatusFailed, reason)
	}
}

func (w *Worker) recordAudit(ctx context.Context, actor string, report ReportKind, status ExportStatus, note string) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         newID(),
		Action:     "report_export",
		Actor:      actor,
		Report:     report,
		Status:     status,
		Note:       note,
		OccurredAt: time.Now().UTC(),
	})
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a defensive copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
