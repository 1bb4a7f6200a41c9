package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/n3xfin/finance-tracker/internal/domain"
	"google.golang.org/api/iterator"
)

const anomalyFeedbackTable = "anomaly_feedback"

// AnomalyFeedbackRowFromDomain maps a verdict to its table row.
func AnomalyFeedbackRowFromDomain(fb *domain.AnomalyFeedback) *AnomalyFeedbackRow {
	submitted := fb.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}
	return &AnomalyFeedbackRow{
		FeedbackID:    uuid.NewString(),
		UserID:        fb.UserID,
		TransactionID: fb.TransactionID,
		IsLegitimate:  fb.IsLegitimate,
		Notes:         bigquery.NullString{StringVal: fb.Notes, Valid: fb.Notes != ""},
		SubmittedTS:   submitted,
	}
}

// InsertAnomalyFeedbackWithClient appends one verdict. Earlier verdicts for
// the same transaction are kept; readers take the latest.
func InsertAnomalyFeedbackWithClient(ctx context.Context, client *bigquery.Client, t Target, row *AnomalyFeedbackRow) error {
	q := client.Query(fmt.Sprintf(`
		INSERT INTO %s (
			feedback_id, user_id, transaction_id,
			is_legitimate, notes, submitted_ts
		)
		VALUES (
			@feedback_id, @user_id, @transaction_id,
			@is_legitimate, @notes, @submitted_ts
		)
	`, t.Table(anomalyFeedbackTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "feedback_id", Value: row.FeedbackID},
		{Name: "user_id", Value: row.UserID},
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "is_legitimate", Value: row.IsLegitimate},
		{Name: "notes", Value: row.Notes},
		{Name: "submitted_ts", Value: row.SubmittedTS},
	}

	return runDML(ctx, q, "InsertAnomalyFeedback")
}

// LegitimateTransactionIDsWithClient returns the transactions whose latest
// verdict from userID marks them legitimate.
func LegitimateTransactionIDsWithClient(ctx context.Context, client *bigquery.Client, t Target, userID string) (map[string]struct{}, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT transaction_id
		FROM (
			SELECT
				transaction_id,
				is_legitimate,
				ROW_NUMBER() OVER (PARTITION BY transaction_id ORDER BY submitted_ts DESC) AS rn
			FROM %s
			WHERE user_id = @user_id
		)
		WHERE rn = 1 AND is_legitimate
	`, t.Table(anomalyFeedbackTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("LegitimateTransactionIDs: query read: %w", err)
	}

	ids := make(map[string]struct{})
	for {
		var r struct {
			TransactionID string `bigquery:"transaction_id"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("LegitimateTransactionIDs: iter next: %w", err)
		}
		ids[r.TransactionID] = struct{}{}
	}
	return ids, nil
}
