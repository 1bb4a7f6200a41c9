package categorize

import (
	"fmt"
	"strings"

	"github.com/n3xfin/finance-tracker/internal/domain"
)

func buildPrompt(txs []*domain.Transaction) string {
	var b strings.Builder

	b.WriteString("You are a financial transaction categorizer.\n")
	b.WriteString("Categorize each transaction below into exactly ONE category from this list:\n\n")
	fmt.Fprintf(&b, "Categories: %s\n\n", strings.Join(Categories, ", "))

	b.WriteString("Category definitions:\n")
	for _, c := range Categories {
		fmt.Fprintf(&b, "- %s: %s\n", c, definitions[c])
	}
	b.WriteString("\n")

	b.WriteString("Transactions to categorize:\n")
	for i, tx := range txs {
		kind := "income"
		if tx.IsExpense() {
			kind = "expense"
		}
		fmt.Fprintf(&b, "%d. Description: %q, Amount: %s (%s), Date: %s\n",
			i+1, tx.Description, tx.Amount.Abs().StringFixed(2), kind, tx.Date.Format("2006-01-02"))
	}
	b.WriteString("\n")

	b.WriteString("For each transaction return an object with:\n")
	b.WriteString("- \"category\": one name from the list above\n")
	b.WriteString("- \"confidence\": number between 0 and 1\n")
	b.WriteString("- \"reasoning\": one short sentence\n\n")

	b.WriteString("Respond with a JSON array containing one object per transaction, in the same order.\n")
	b.WriteString("Return ONLY valid raw JSON. Do NOT wrap the response in code fences.\n")

	return b.String()
}
