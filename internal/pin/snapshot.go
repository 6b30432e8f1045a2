package pin

import (
	"context"

	"pinbot/internal/storage"
)

// snapshotRecipients pages the user store and fully materializes the
// deliverable recipient list before any network call. A broadcast over a
// large population can run for minutes; deciding who to contact up front
// keeps no database cursor open across that span (the only DB writes
// during delivery are the isolated MarkDelivered calls).
func snapshotRecipients(ctx context.Context, st storage.Store, pageSize int) ([]storage.Recipient, error) {
	if pageSize <= 0 {
		pageSize = 5000
	}
	var out []storage.Recipient
	var after int64
	for {
		page, err := st.RecipientPage(ctx, after, pageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
		after = page[len(page)-1].UserID
	}
}
