package notionsync

import (
	"github.com/jomei/notionapi"
	"github.com/n3xfin/finance-tracker/internal/domain"
)

// Property names of the Notion transactions database.
const (
	propDescription = "Description"
	propDate        = "Date"
	propAmount      = "Amount"
	propBalance     = "Balance"
	propCategory    = "Category"
	propConfidence  = "Confidence"
	propSource      = "Source File"
	propUser        = "User"
	propHash        = "Content Hash"
)

// TransactionToNotionProperties converts a transaction to Notion page
// properties. The content hash is the page's identity across syncs.
func TransactionToNotionProperties(tx *domain.Transaction) notionapi.Properties {
	amount, _ := tx.Amount.Float64()
	date := notionapi.Date(tx.Date)

	props := notionapi.Properties{
		propDescription: notionapi.TitleProperty{
			Title: richText(tx.Description),
		},
		propDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		propAmount: notionapi.NumberProperty{Number: amount},
		propUser:   notionapi.RichTextProperty{RichText: richText(tx.UserID)},
		propHash:   notionapi.RichTextProperty{RichText: richText(tx.ContentHash())},
	}

	if tx.Balance != nil {
		balance, _ := tx.Balance.Float64()
		props[propBalance] = notionapi.NumberProperty{Number: balance}
	}
	if tx.Category != "" {
		props[propCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Category},
		}
		props[propConfidence] = notionapi.NumberProperty{Number: tx.CategoryConfidence}
	}
	if tx.SourceFile != "" {
		props[propSource] = notionapi.RichTextProperty{RichText: richText(tx.SourceFile)}
	}

	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// pageText returns the plain text of a rich-text or title property, or "".
func pageText(page notionapi.Page, name string) string {
	switch prop := page.Properties[name].(type) {
	case *notionapi.RichTextProperty:
		if len(prop.RichText) > 0 {
			return prop.RichText[0].PlainText
		}
	case *notionapi.TitleProperty:
		if len(prop.Title) > 0 {
			return prop.Title[0].PlainText
		}
	}
	return ""
}

// pageCategory returns the selected category of a page, or "".
func pageCategory(page notionapi.Page) string {
	if prop, ok := page.Properties[propCategory].(*notionapi.SelectProperty); ok {
		return prop.Select.Name
	}
	return ""
}
