package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorName(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, SystemActor, ActorName(ctx))

	ctx = WithActor(ctx, &Actor{ID: "42", Name: "alice", Roles: []string{"planner"}})
	assert.Equal(t, "alice", ActorName(ctx))
	assert.True(t, HasRole(ctx, "planner"))
	assert.False(t, HasRole(ctx, "admin"))
}
