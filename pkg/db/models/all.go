package models

// All lists every persisted model in dependency order. Used for SQLite
// schemas where the goose SQL migrations (Postgres dialect) do not apply.
func All() []any {
	return []any{
		&User{},
		&Room{},
		&MessPlan{},
		&AncillaryService{},
		&LedgerEntry{},
		&Booking{},
		&MessSubscription{},
		&ServiceOrder{},
		&WebhookEvent{},
	}
}
