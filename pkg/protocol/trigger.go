package protocol

import (
	"context"

	"github.com/dukex/packflow/pkg/models"
)

// OccurrenceCallback receives occurrences emitted by a source.
type OccurrenceCallback func(ctx context.Context, occurrence models.Occurrence) error

// OccurrenceSource is a long-running producer of occurrences, such as the
// scheduler or a subscription to data-mutation events.
type OccurrenceSource interface {
	Start(ctx context.Context, callback OccurrenceCallback) error
	Stop(ctx context.Context) error
}
