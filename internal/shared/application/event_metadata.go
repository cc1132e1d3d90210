package application

import (
	"context"

	"github.com/felixgeelhaar/tutorhub/internal/shared/domain"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
	"github.com/google/uuid"
)

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// NewEventMetadata starts a new correlation chain for events raised on behalf
// of userID.
func NewEventMetadata(userID uuid.UUID) domain.EventMetadata {
	return domain.EventMetadata{
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
		UserID:        userID,
	}
}

// EventMetadataFromContext continues the correlation chain carried by ctx,
// starting a new one when ctx has no usable correlation id.
func EventMetadataFromContext(ctx context.Context, userID uuid.UUID) domain.EventMetadata {
	metadata := NewEventMetadata(userID)
	if id, err := uuid.Parse(observability.CorrelationIDFromContext(ctx)); err == nil {
		metadata.CorrelationID = id
	}
	return metadata
}

// ApplyEventMetadata stamps every event that accepts metadata. Events passed
// by value are skipped.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
