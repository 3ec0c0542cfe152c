package webhookevents

import (
	"database/sql"

	"github.com/fastprodman/creditsettle/internal/repos/webhookevents"
)

var _ webhookevents.Inbox = (*inboxRepo)(nil)

type inboxRepo struct{ db *sql.DB }

func New(db *sql.DB) *inboxRepo {
	return &inboxRepo{db: db}
}

const eventColumns = `id, provider, provider_reference, event_type, payload,
	signature_verified, outcome, account_id, detail, created_at, resolved_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (webhookevents.Event, error) {
	var (
		ev      webhookevents.Event
		payload string
	)

	err := row.Scan(
		&ev.ID, &ev.Provider, &ev.ProviderReference, &ev.EventType, &payload,
		&ev.SignatureVerified, &ev.Outcome, &ev.AccountID, &ev.Detail, &ev.CreatedAt, &ev.ResolvedAt,
	)
	ev.Payload = []byte(payload)

	return ev, err
}
