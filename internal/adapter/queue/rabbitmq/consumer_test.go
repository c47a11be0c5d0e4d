package rabbitmq

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jobpilot/orchestrator/internal/domain"
)

func TestAckAction(t *testing.T) {
	assert.Equal(t, actionAck, ackAction(nil))
	assert.Equal(t, actionDrop, ackAction(domain.ErrSchemaInvalid))
	assert.Equal(t, actionDrop, ackAction(fmt.Errorf("op=outcome.decode: %w", domain.ErrSchemaInvalid)))
	assert.Equal(t, actionRequeue, ackAction(errors.New("db down")))
	assert.Equal(t, actionRequeue, ackAction(fmt.Errorf("op=application.upsert: %w", domain.ErrInternal)))
}
