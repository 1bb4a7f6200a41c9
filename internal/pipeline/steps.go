package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/logger"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// ExtractionTier names the strategy that produced the candidates.
type ExtractionTier string

const (
	TierDelimited    ExtractionTier = "delimited"
	TierTextPattern  ExtractionTier = "text_pattern"
	TierAIStructured ExtractionTier = "ai_structured"
)

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Request IngestRequest
	RunID   string

	Raw         []byte
	Candidates  []*domain.Transaction
	SkippedRows int
	Tier        ExtractionTier
	AIOutput    *AIExtraction

	Unique []*domain.Transaction
	Stored int
}

// Result summarizes the state as an IngestResult.
func (s *PipelineState) Result() *IngestResult {
	return &IngestResult{
		TotalExtracted:    len(s.Candidates),
		Unique:            len(s.Unique),
		Stored:            s.Stored,
		DuplicatesSkipped: len(s.Candidates) - len(s.Unique),
		SkippedRows:       s.SkippedRows,
		Tier:              s.Tier,
		IngestionRunID:    s.RunID,
	}
}

func (s *PipelineState) source() Source {
	return Source{UserID: s.Request.UserID, SourceFile: s.Request.sourceName()}
}

// StartRunStep records the start of an ingestion run.
type StartRunStep struct {
	runs RunRecorder
}

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.runs == nil {
		return nil
	}
	runID, err := s.runs.StartIngestionRun(ctx, &RunInfo{
		UserID:     state.Request.UserID,
		SourceRef:  state.Request.SourceRef,
		SourceFile: state.Request.sourceName(),
		ForceAI:    state.Request.ForceAI,
	})
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Could not record ingestion run start")
		return nil
	}
	state.RunID = runID
	return nil
}

// FetchSourceStep reads the uploaded bytes from object storage.
type FetchSourceStep struct {
	storage  ObjectStore
	maxBytes int64
}

func (s *FetchSourceStep) Execute(ctx context.Context, state *PipelineState) error {
	data, err := s.storage.FetchRawBytes(ctx, state.Request.SourceRef)
	if err != nil {
		return externalError("object_store", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return newError(KindFileTooLarge,
			fmt.Sprintf("file is %d bytes, limit is %d", len(data), s.maxBytes),
			map[string]any{"size": len(data), "maxSize": s.maxBytes})
	}
	state.Raw = data
	return nil
}

// ExtractStep routes the document to the delimited or unstructured tiers.
type ExtractStep struct {
	texts TextExtractor
	ai    *AIExtractor
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	if isDelimited(state.Request.sourceName()) {
		return s.extractDelimited(ctx, state)
	}
	return s.extractUnstructured(ctx, state)
}

func (s *ExtractStep) extractDelimited(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	headers, rows, err := ReadDelimited(state.Raw)
	if err != nil {
		return err
	}
	mapping, err := DetectColumns(headers)
	if err != nil {
		return err
	}

	src := state.source()
	var failedRows []int
	for _, row := range rows {
		res := ParseRow(row, mapping, src)
		switch res.Status {
		case RowParsed:
			state.Candidates = append(state.Candidates, res.Transaction)
		case RowSkipped:
			state.SkippedRows++
			log.Debug().Int("row", row.Number).Msg("Skipping blank row")
		case RowFailed:
			state.SkippedRows++
			failedRows = append(failedRows, row.Number)
			log.Warn().Err(res.Err).Int("row", row.Number).Msg("Skipping invalid row")
		}
	}
	state.Tier = TierDelimited

	if len(state.Candidates) == 0 {
		return newError(KindNoValidTransactions, "no valid transactions found in file",
			map[string]any{"skippedRows": state.SkippedRows, "failedRows": failedRows})
	}
	return nil
}

func (s *ExtractStep) extractUnstructured(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	name := state.Request.sourceName()

	text, err := s.texts.ExtractText(ctx, name, state.Raw)
	if err != nil {
		return &IngestError{
			Kind:    KindUnsupportedFileType,
			Message: "could not extract text from " + name,
			Details: map[string]any{"file": name},
			Err:     err,
		}
	}
	if strings.TrimSpace(text) == "" {
		return newError(KindNoTransactionsFound, "document contains no extractable text", nil)
	}

	src := state.source()
	found := ExtractFromText(ctx, text, src)
	if len(found) > 0 {
		state.Candidates = found
		state.Tier = TierTextPattern
	}

	if len(found) > 0 && !state.Request.ForceAI {
		return nil
	}
	if s.ai == nil {
		if len(found) > 0 {
			return nil
		}
		return newError(KindNoTransactionsFound, "no transactions matched and AI extraction is not configured", nil)
	}

	out, aiErr := s.ai.Extract(ctx, text, src)
	if aiErr != nil {
		if len(found) > 0 {
			log.Warn().Err(aiErr).Int("text_tier_count", len(found)).Msg("AI extraction failed, keeping text-pattern results")
			return nil
		}
		return &IngestError{
			Kind:    KindNoTransactionsFound,
			Message: "no transactions found and AI extraction failed",
			Details: map[string]any{"aiError": aiErr.Error()},
			Err:     aiErr,
		}
	}

	state.AIOutput = out
	if len(out.Transactions) > 0 {
		state.Candidates = out.Transactions
		state.Tier = TierAIStructured
		return nil
	}
	if len(found) > 0 {
		return nil
	}
	return newError(KindNoTransactionsFound, "no transactions found in document",
		map[string]any{"aiSkippedElements": out.Skipped})
}

// StoreModelOutputStep keeps the raw AI response for debugging and re-processing.
type StoreModelOutputStep struct {
	runs RunRecorder
	ai   *AIExtractor
}

func (s *StoreModelOutputStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.runs == nil || state.AIOutput == nil || state.RunID == "" {
		return nil
	}
	model := ""
	if s.ai != nil {
		model = s.ai.ModelName()
	}
	if err := s.runs.StoreModelOutput(ctx, state.RunID, model, state.AIOutput.RawResponse); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("ingestion_run_id", state.RunID).Msg("Could not store model output")
	}
	return nil
}

// DeduplicateStep drops candidates already stored for the user.
type DeduplicateStep struct {
	dedup *Deduplicator
}

func (s *DeduplicateStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Unique = s.dedup.FilterNew(ctx, state.Candidates, state.Request.UserID)
	return nil
}

// PersistStep stores the unique transactions.
type PersistStep struct {
	store TransactionStore
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Unique) == 0 {
		return nil
	}

	stored, err := s.store.PersistTransactions(WithIngestionRunID(ctx, state.RunID), state.Unique)
	state.Stored = stored
	if err == nil {
		return nil
	}
	if stored == 0 {
		return externalError("transaction_store", err)
	}

	log := logger.FromContext(ctx)
	log.Warn().
		Err(err).
		Int("stored", stored).
		Int("failed", len(state.Unique)-stored).
		Msg("Some transactions could not be stored")
	return nil
}

// MarkSuccessStep finalizes the ingestion run.
type MarkSuccessStep struct {
	runs RunRecorder
}

func (s *MarkSuccessStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.runs == nil || state.RunID == "" {
		return nil
	}
	if err := s.runs.MarkIngestionRunSucceeded(ctx, state.RunID, state.Result()); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("ingestion_run_id", state.RunID).Msg("Could not mark ingestion run succeeded")
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

func isDelimited(name string) bool {
	return strings.EqualFold(path.Ext(name), ".csv")
}
