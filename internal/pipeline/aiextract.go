package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/llm"
	"github.com/n3xfin/finance-tracker/internal/logger"
	"github.com/shopspring/decimal"
)

// AIConfig controls the AI extraction tier.
type AIConfig struct {
	ModelName     string
	MaxInputChars int
	MaxTokens     int32
	Temperature   float32
	ReferenceYear int
	Timeout       time.Duration
}

// AIExtraction is the outcome of one AI extraction call.
type AIExtraction struct {
	Transactions []*domain.Transaction
	RawResponse  string
	Truncated    bool
	Skipped      int // elements dropped for missing or invalid fields
}

// AIExtractor turns document text into transactions with an LLM.
type AIExtractor struct {
	completer llm.Completer
	cfg       AIConfig
}

// NewAIExtractor creates an AI extractor.
func NewAIExtractor(completer llm.Completer, cfg AIConfig) *AIExtractor {
	return &AIExtractor{completer: completer, cfg: cfg}
}

// ModelName returns the configured model name.
func (e *AIExtractor) ModelName() string {
	return e.cfg.ModelName
}

// Extract asks the model for a JSON array of transactions.
// A failed or timed-out completion is returned as an EXTERNAL_SERVICE_ERROR;
// unusable output is reported as an empty result.
func (e *AIExtractor) Extract(ctx context.Context, documentText string, src Source) (*AIExtraction, error) {
	log := logger.FromContext(ctx)

	text, truncated := truncateRunes(documentText, e.cfg.MaxInputChars)
	prompt := buildExtractionPrompt(text, e.cfg.ReferenceYear)

	callCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	raw, err := e.completer.Complete(callCtx, prompt, e.cfg.MaxTokens, e.cfg.Temperature)
	if err != nil {
		return nil, externalError("llm", fmt.Errorf("Extract: completing prompt: %w", err))
	}

	out := &AIExtraction{RawResponse: raw, Truncated: truncated}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &elements); err != nil {
		log.Warn().Err(err).Int("response_len", len(raw)).Msg("AI extraction returned non-JSON output")
		return out, nil
	}

	for i, el := range elements {
		tx, err := transactionFromElement(el, src)
		if err != nil {
			log.Debug().Err(err).Int("element", i).Msg("Skipping AI-extracted element")
			out.Skipped++
			continue
		}
		out.Transactions = append(out.Transactions, tx)
	}

	return out, nil
}

type aiElement struct {
	Date        *string         `json:"date"`
	Description *string         `json:"description"`
	Amount      json.RawMessage `json:"amount"`
	Balance     json.RawMessage `json:"balance"`
}

func transactionFromElement(el json.RawMessage, src Source) (*domain.Transaction, error) {
	dec := json.NewDecoder(bytes.NewReader(el))
	dec.UseNumber()

	var v aiElement
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("transactionFromElement: decoding element: %w", err)
	}

	if v.Date == nil || strings.TrimSpace(*v.Date) == "" {
		return nil, fmt.Errorf("transactionFromElement: missing date")
	}
	if v.Description == nil || strings.TrimSpace(*v.Description) == "" {
		return nil, fmt.Errorf("transactionFromElement: missing description")
	}

	date, err := ParseDate(*v.Date)
	if err != nil {
		return nil, err
	}
	amount, err := jsonAmount(v.Amount)
	if err != nil {
		return nil, err
	}

	tx := newTransaction(src, date, strings.TrimSpace(*v.Description), amount)
	if balance, err := jsonAmount(v.Balance); err == nil {
		tx.Balance = &balance
	}
	tx.RawData = append(json.RawMessage(nil), el...)

	return tx, nil
}

// jsonAmount reads a JSON number or currency string into a decimal.
func jsonAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Decimal{}, newError(KindInvalidAmount, "missing amount", nil)
	}

	if strings.HasPrefix(s, "\"") {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.Decimal{}, invalidAmount(s)
		}
		return ParseAmount(str)
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return decimal.Decimal{}, invalidAmount(s)
	}
	d, err := decimal.NewFromString(num.String())
	if err != nil {
		return decimal.Decimal{}, invalidAmount(s)
	}
	return d, nil
}
