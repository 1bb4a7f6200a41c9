package pipeline_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/pipeline"
)

// MockObjectStore is a mock implementation of pipeline.ObjectStore
type MockObjectStore struct {
	FetchRawBytesFunc func(ctx context.Context, sourceRef string) ([]byte, error)
}

func (m *MockObjectStore) FetchRawBytes(ctx context.Context, sourceRef string) ([]byte, error) {
	if m.FetchRawBytesFunc != nil {
		return m.FetchRawBytesFunc(ctx, sourceRef)
	}
	return nil, nil
}

func bytesStore(data string) *MockObjectStore {
	return &MockObjectStore{FetchRawBytesFunc: func(ctx context.Context, sourceRef string) ([]byte, error) {
		return []byte(data), nil
	}}
}

// MockTextExtractor is a mock implementation of pipeline.TextExtractor
type MockTextExtractor struct {
	ExtractTextFunc func(ctx context.Context, filename string, data []byte) (string, error)
}

func (m *MockTextExtractor) ExtractText(ctx context.Context, filename string, data []byte) (string, error) {
	if m.ExtractTextFunc != nil {
		return m.ExtractTextFunc(ctx, filename, data)
	}
	return string(data), nil
}

// MockCompleter is a mock implementation of llm.Completer that counts calls.
type MockCompleter struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)

	mu    sync.Mutex
	Calls int
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string, maxTokens int32, temperature float32) (string, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "[]", nil
}

// memoryStore is an in-memory pipeline.TransactionStore keyed by (user, content hash).
type memoryStore struct {
	mu      sync.Mutex
	rows    map[string][]*domain.Transaction
	failAt  int // when > 0, persisting stops after this many rows
	failAll bool
	hashErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string][]*domain.Transaction)}
}

func (s *memoryStore) ExistingTransactionHashes(ctx context.Context, userID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashErr != nil {
		return nil, s.hashErr
	}
	out := make(map[string]struct{})
	for _, tx := range s.rows[userID] {
		out[tx.ContentHash()] = struct{}{}
	}
	return out, nil
}

func (s *memoryStore) PersistTransactions(ctx context.Context, txs []*domain.Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return 0, fmt.Errorf("table not found")
	}
	for i, tx := range txs {
		if s.failAt > 0 && i >= s.failAt {
			return i, fmt.Errorf("insert failed for %d rows", len(txs)-i)
		}
		s.rows[tx.UserID] = append(s.rows[tx.UserID], tx)
	}
	return len(txs), nil
}

func (s *memoryStore) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[userID])
}

// MockRunRecorder is a mock implementation of pipeline.RunRecorder
type MockRunRecorder struct {
	StartIngestionRunFunc func(ctx context.Context, run *pipeline.RunInfo) (string, error)
	StoreModelOutputFunc  func(ctx context.Context, runID, modelName, rawResponse string) error

	Failed      []error
	Succeeded   []*pipeline.IngestResult
	ModelOutput []string
}

func (m *MockRunRecorder) StartIngestionRun(ctx context.Context, run *pipeline.RunInfo) (string, error) {
	if m.StartIngestionRunFunc != nil {
		return m.StartIngestionRunFunc(ctx, run)
	}
	return "run-1", nil
}

func (m *MockRunRecorder) MarkIngestionRunFailed(ctx context.Context, runID string, runErr error) {
	m.Failed = append(m.Failed, runErr)
}

func (m *MockRunRecorder) MarkIngestionRunSucceeded(ctx context.Context, runID string, result *pipeline.IngestResult) error {
	m.Succeeded = append(m.Succeeded, result)
	return nil
}

func (m *MockRunRecorder) StoreModelOutput(ctx context.Context, runID, modelName, rawResponse string) error {
	m.ModelOutput = append(m.ModelOutput, rawResponse)
	if m.StoreModelOutputFunc != nil {
		return m.StoreModelOutputFunc(ctx, runID, modelName, rawResponse)
	}
	return nil
}
