package router

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// LocalConversations is an in-process ConversationProvider: one conversation
// per (user, owner) pair, minted on first use. Stands in for the external
// chat provisioning service in single-process deployments and tests.
type LocalConversations struct {
	mu    sync.Mutex
	pairs map[[2]string]string
}

func NewLocalConversations() *LocalConversations {
	return &LocalConversations{
		pairs: make(map[[2]string]string),
	}
}

func (c *LocalConversations) EnsureConversation(_ context.Context, userID, salonOwnerID string) (string, error) {
	key := [2]string{userID, salonOwnerID}

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.pairs[key]; ok {
		return id, nil
	}

	id := uuid.New().String()
	c.pairs[key] = id
	return id, nil
}
