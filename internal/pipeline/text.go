package pipeline

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/n3xfin/finance-tracker/internal/domain"
	"github.com/n3xfin/finance-tracker/internal/logger"
)

const (
	decimalAmount  = `(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}`
	groupedInteger = `\d{1,3}(?:,\d{3})+`
)

var (
	// Day-first dates such as 15/01/2024 match here and are resolved by ParseDate.
	lineDateRe = regexp.MustCompile(`(?i)\b(?:` +
		`\d{4}-\d{1,2}-\d{1,2}` +
		`|\d{1,2}[/-]\d{1,2}[/-](?:\d{4}|\d{2})` +
		`|\d{1,2}[ -](?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*[ -]\d{4}` +
		`)\b`)

	// Bare integers are only amounts with a currency symbol or thousands
	// grouping; otherwise reference numbers would be read as amounts.
	lineAmountRe = regexp.MustCompile(`\(\s*[$£€]?(?:` + decimalAmount + `|` + groupedInteger + `)\s*\)` +
		`|[-+]?[$£€]-?(?:` + decimalAmount + `|` + groupedInteger + `|\d+)\b` +
		`|[-+]?-?(?:` + decimalAmount + `|` + groupedInteger + `)\b`)
)

// ExtractFromText scans free text line by line for "date ... description ... amount"
// entries. It never fails; lines that do not fit the pattern are skipped.
func ExtractFromText(ctx context.Context, text string, src Source) []*domain.Transaction {
	log := logger.FromContext(ctx)

	var txs []*domain.Transaction
	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		dateLoc := lineDateRe.FindStringIndex(line)
		if dateLoc == nil {
			continue
		}

		rest := line[dateLoc[1]:]
		amounts := lineAmountRe.FindAllStringIndex(rest, -1)
		if len(amounts) == 0 {
			continue
		}
		amountLoc := amounts[len(amounts)-1]

		desc := strings.Join(strings.Fields(rest[:amountLoc[0]]), " ")
		if desc == "" {
			continue
		}

		date, err := ParseDate(line[dateLoc[0]:dateLoc[1]])
		if err != nil {
			log.Debug().Err(err).Int("line", lineNo).Msg("Skipping text line with unparseable date")
			continue
		}
		amount, err := ParseAmount(rest[amountLoc[0]:amountLoc[1]])
		if err != nil {
			log.Debug().Err(err).Int("line", lineNo).Msg("Skipping text line with unparseable amount")
			continue
		}

		tx := newTransaction(src, date, desc, amount)
		if raw, err := json.Marshal(map[string]any{"line": lineNo, "text": line}); err == nil {
			tx.RawData = raw
		}
		txs = append(txs, tx)
	}

	return txs
}
