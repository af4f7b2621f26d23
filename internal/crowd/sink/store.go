package sink

import (
	"github.com/banshee-data/crowd.report/internal/crowd"
	"github.com/banshee-data/crowd.report/internal/crowd/storage/sqlite"
)

// StoreSink persists each alert through the SQLite alert store. It covers
// deployments that want durable alerts without recording every frame.
type StoreSink struct {
	store *sqlite.AlertStore
}

// NewStoreSink wraps an alert store as a delivery target.
func NewStoreSink(store *sqlite.AlertStore) *StoreSink {
	return &StoreSink{store: store}
}

// PublishAlert implements crowd.AlertSink.
func (s *StoreSink) PublishAlert(a crowd.Alert) error {
	return s.store.Insert(&a)
}
