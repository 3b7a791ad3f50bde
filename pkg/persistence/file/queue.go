package file

import (
	"context"
	"fmt"
	"os"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
)

const queueKind = "queue"

// SaveMessage writes one queued-message document.
func (p *Persistence) SaveMessage(_ context.Context, message *models.QueuedMessage) error {
	if err := p.writeDoc(queueKind, message.ID, message); err != nil {
		return &persistence.MessageError{Op: "SaveMessage", MessageID: message.ID, Err: err}
	}

	return nil
}

// DeleteMessage removes one queued-message document.
func (p *Persistence) DeleteMessage(_ context.Context, id string) error {
	if err := p.removeDoc(queueKind, id); err != nil {
		if os.IsNotExist(err) {
			return &persistence.MessageError{Op: "DeleteMessage", MessageID: id, Err: persistence.ErrMessageNotFound}
		}

		return &persistence.MessageError{Op: "DeleteMessage", MessageID: id, Err: err}
	}

	return nil
}

// Messages loads every persisted queued message, used to warm the in-memory
// queue at startup.
func (p *Persistence) Messages(_ context.Context) ([]*models.QueuedMessage, error) {
	ids, err := p.listIDs(queueKind)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued messages: %w", err)
	}

	messages := make([]*models.QueuedMessage, 0, len(ids))

	for _, id := range ids {
		var message models.QueuedMessage

		if err := p.readDoc(queueKind, id, &message); err != nil {
			return nil, fmt.Errorf("failed to load queued message %s: %w", id, err)
		}

		messages = append(messages, &message)
	}

	return messages, nil
}
