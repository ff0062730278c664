package bidding

import (
	"github.com/google/uuid"
	"github.com/lothammer/auction-backend/internal/domain/lot"
)

// Notifier receives live events after the engine transaction commits. The
// hub is an observer, never a gate: implementations must not block bid
// processing.
type Notifier interface {
	PublishBid(lotID uuid.UUID, snap lot.Snapshot)
	PublishSoftClose(lotID uuid.UUID, snap lot.Snapshot)
	PublishLotClosed(lotID uuid.UUID, snap lot.Snapshot)
}

// Metrics collects engine counters.
type Metrics interface {
	RecordBid(resultCode string)
	RecordProxyTriggered()
	RecordSoftClose()
	RecordBuyNow()
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) PublishBid(uuid.UUID, lot.Snapshot)       {}
func (NopNotifier) PublishSoftClose(uuid.UUID, lot.Snapshot) {}
func (NopNotifier) PublishLotClosed(uuid.UUID, lot.Snapshot) {}

// NopMetrics discards all counters.
type NopMetrics struct{}

func (NopMetrics) RecordBid(string)      {}
func (NopMetrics) RecordProxyTriggered() {}
func (NopMetrics) RecordSoftClose()      {}
func (NopMetrics) RecordBuyNow()         {}
