package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/n3xfin/finance-tracker/internal/pipeline"
)

const sampleCSV = `Date,Description,Amount,Balance
2024-01-15,Grocery Store,-45.50,954.50
01/16/2024,"Coffee, Downtown",($4.25),950.25
2024-01-17,Salary,"$2,000.00",2950.25
`

func newIngestor(storage pipeline.ObjectStore, store pipeline.TransactionStore, completer *MockCompleter, runs pipeline.RunRecorder) *pipeline.Ingestor {
	deps := pipeline.Deps{
		Storage: storage,
		Texts:   &MockTextExtractor{},
		Store:   store,
	}
	if completer != nil {
		deps.AI = pipeline.NewAIExtractor(completer, pipeline.AIConfig{ModelName: "test-model", ReferenceYear: 2024})
	}
	if runs != nil {
		deps.Runs = runs
	}
	return pipeline.NewIngestor(deps, pipeline.Config{MaxFileSizeBytes: 1 << 20})
}

func TestIngest_DelimitedIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	runs := &MockRunRecorder{}
	in := newIngestor(bytesStore(sampleCSV), store, nil, runs)
	req := pipeline.IngestRequest{SourceRef: "gs://bucket/u1/jan.csv", UserID: "u1"}

	first, err := in.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("first Ingest() error: %v", err)
	}
	if first.TotalExtracted != 3 || first.Stored != 3 || first.Tier != pipeline.TierDelimited {
		t.Errorf("first result = %+v", first)
	}
	if first.IngestionRunID != "run-1" {
		t.Errorf("IngestionRunID = %q", first.IngestionRunID)
	}

	second, err := in.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("second Ingest() error: %v", err)
	}
	if second.Stored != 0 || second.DuplicatesSkipped != 3 {
		t.Errorf("second result = %+v, want 0 stored and 3 duplicates", second)
	}
	if got := store.count("u1"); got != 3 {
		t.Errorf("store has %d rows, want 3", got)
	}
	if len(runs.Succeeded) != 2 || len(runs.Failed) != 0 {
		t.Errorf("run recorder: %d succeeded, %d failed", len(runs.Succeeded), len(runs.Failed))
	}
}

func TestIngest_SourceFileNamedOnTransactions(t *testing.T) {
	store := newMemoryStore()
	in := newIngestor(bytesStore(sampleCSV), store, nil, nil)

	_, err := in.Ingest(context.Background(), pipeline.IngestRequest{SourceRef: "gs://bucket/u1/obj-123", UserID: "u1", SourceFile: "jan.CSV"})
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	for _, tx := range store.rows["u1"] {
		if tx.SourceFile != "jan.CSV" {
			t.Errorf("SourceFile = %q, want jan.CSV", tx.SourceFile)
		}
	}
}

func TestIngest_SkipsInvalidRows(t *testing.T) {
	data := `Date,Description,Amount
2024-01-15,Grocery Store,-45.50
invalid-date,Bad Row,-1.00
2024-01-16,Bad Amount,"€45,00"
2024-01-17,,-3.00
2024-01-18,Bookshop,-12.00
`
	in := newIngestor(bytesStore(data), newMemoryStore(), nil, nil)

	res, err := in.Ingest(context.Background(), pipeline.IngestRequest{SourceRef: "gs://b/s.csv", UserID: "u1"})
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if res.TotalExtracted != 2 || res.Stored != 2 || res.SkippedRows != 3 {
		t.Errorf("result = %+v, want 2 extracted, 2 stored, 3 skipped", res)
	}
}

func TestIngest_DelimitedFailures(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"missing amount column", "Date,Description\n2024-01-15,Coffee\n", pipeline.ErrMissingColumns},
		{"empty file", "", pipeline.ErrMissingColumns},
		{"header only", "Date,Description,Amount\n", pipeline.ErrNoValidTransactions},
		{"all rows invalid", "Date,Description,Amount\nnope,Coffee,-1.00\n2024-01-01,Tea,abc\n", pipeline.ErrNoValidTransactions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := &MockRunRecorder{}
			in := newIngestor(bytesStore(tt.data), newMemoryStore(), nil, runs)

			_, err := in.Ingest(context.Background(), pipeline.IngestRequest{SourceRef: "gs://b/s.csv", UserID: "u1"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("Ingest() error = %v, want %v", err, tt.want)
			}
			if !pipeline.IsFileScoped(err) {
				t.Errorf("expected file-scoped error")
			}
			if len(runs.Failed) != 1 {
				t.Errorf("MarkIngestionRunFailed called %d times, want 1", len(runs.Failed))
			}
		})
	}
}

func TestIngest_FileTooLarge(t *testing.T) {
	in := pipeline.NewIngestor(pipeline.Deps{
		Storage: bytesStore("Date,Description,Amount\n2024-01-15,Coffee,-1.00\n"),
		Texts:   &MockTextExtractor{},
		Store:   newMemoryStore(),
	}, pipeline.Config{MaxFileSizeBytes: 10})

	_, err := in.Ingest(context.Background(), pipeline.IngestRequest{SourceRef: "gs://b/s.csv", UserID: "u1"})
	if !errors.Is(err, pipeline.ErrFileTooLarge) {
		t.Fatalf("error = %v, want FILE_TOO_LARGE", err)
	}
}

func TestIngest_ObjectStoreFailure(t *testing.T) {
	storage := &MockObjectStore{FetchRawBytesFunc: func(ctx context.Context, sourceRef string) ([]byte, error) {
		return nil, errors.New("object not found")
	}}
	in := newIngestor(storage, newMemoryStore(), nil, nil)

	_, err := in.Ingest(context.Background(), pipeline.IngestRequest{SourceRef: "gs://b/s.csv", UserID: "u1"})
	if !errors.Is(err, pipeline.ErrExternalService) {
		t.Fatalf("error = %v, want EXTERNAL_SERVICE_ERROR", err)
	}
	if pipeline.IsFileScoped(err) {
		t.Error("dependency failures must be retryable")
	}
}

func TestIngest_InvalidRequest(t *testing.T) {
	in := newIngestor(bytesStore(sampleCSV), newMemoryStore(), nil, nil)
	for _, req := range []pipeline.IngestRequest{
		{SourceRef: "gs://b/s.csv"},
		{UserID: "u1"},
	} {
		if _, err := in.Ingest(context.Background(), req); !errors.Is(err, pipeline.ErrInvalidRequest) {
			t.Errorf("Ingest(%+v) error = %v, want INVALID_REQUEST", req, err)
		}
	}
}

func TestIngest_DuplicatesWithinBatch(t *testing.T) {
	data := `Date,Description,Amount
2024-01-15,Grocery Store,-45.50
2024-01-15,grocery store ,-45.5
`
	store := newMemoryStore()
	in := newIngestor(bytesStore(data), store, nil, nil)

	res, err := in.Ingest(context.Background(), pipeline.IngestRequest{SourceRef: "gs://b/s.csv", UserID: "u1"})
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if res.TotalExtracted != 2 || res.Unique != 1 || res.Stored != 1 || res.DuplicatesSkipped != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestIngest_PartialPersist(t *testing.T) {
	store := newMemoryStore()
	store.failAt = 2
	in := newIngestor(bytesStore(sampleCSV), store, nil, nil)

	res, err := in.Ingest(context.Background(), pipeline.IngestRequest{SourceRef: "gs://b/s.csv", UserID: "u1"})
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if res.Unique != 3 || res.Stored != 2 {
		t.Errorf("result = %+v, want 3 unique and 2 stored", res)
	}
}

func TestIngest_PersistTotalFailure(t *testing.T) {
	store := newMemoryStore()
	store.failAll = true
	in := newIngestor(bytesStore(sampleCSV), store, nil, nil)

	_, err := in.Ingest(context.Background(), pipeline.IngestRequest{SourceRef: "gs://b/s.csv", UserID: "u1"})
	if !errors.Is(err, pipeline.ErrExternalService) {
		t.Fatalf("error = %v, want EXTERNAL_SERVICE_ERROR", err)
	}
	if pipeline.DetailsOf(err)["dependency"] != "transaction_store" {
		t.Errorf("details = %v", pipeline.DetailsOf(err))
	}
}
