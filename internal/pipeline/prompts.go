package pipeline

import (
	"fmt"
	"strings"
)

// buildExtractionPrompt builds the instruction prompt for AI extraction.
// documentText must already be truncated.
func buildExtractionPrompt(documentText string, referenceYear int) string {
	var b strings.Builder

	b.WriteString("You are a bank statement parser.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Extract ALL transactions from the statement text below.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n")
	b.WriteString("- Output a JSON array of objects.\n\n")

	b.WriteString("Each object must have these fields:\n")
	b.WriteString("- \"date\": string, ISO format \"YYYY-MM-DD\"\n")
	b.WriteString("- \"description\": string (merchant or memo text)\n")
	b.WriteString("- \"amount\": number (negative for debits/withdrawals/money OUT, positive for credits/deposits/money IN)\n")
	b.WriteString("- \"balance\": number or null (running balance after the transaction, if shown)\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- If the statement has separate \"paid out\" / \"paid in\" columns, convert to a single signed \"amount\".\n")
	fmt.Fprintf(&b, "- If a date has only day and month, assume the year %d.\n", referenceYear)
	b.WriteString("- Skip opening/closing balance lines and totals; they are not transactions.\n")
	b.WriteString("- If no transactions are found, return [].\n\n")

	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"[\" and end with \"]\".\n\n")

	b.WriteString("Statement text:\n")
	b.WriteString(documentText)
	b.WriteString("\n")

	return b.String()
}

// truncateRunes returns at most max runes of s and whether it cut anything.
func truncateRunes(s string, max int) (string, bool) {
	if max <= 0 {
		return s, false
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}
