package controller_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcad/cad/controller"
	"github.com/BaSui01/agentcad/cad/model"
)

func setupMessagingAgents(t *testing.T) *controller.Controller {
	t.Helper()
	ctrl, _ := newController(t, 4)
	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol"} {
		_, err := ctrl.CreateAgent(ctx, id, "designer", model.MainWorkspaceID)
		require.NoError(t, err)
	}
	return ctrl
}

func TestPointToPointMessage(t *testing.T) {
	ctrl := setupMessagingAgents(t)
	ctx := context.Background()

	msg, err := ctrl.SendMessage(ctx, "alice", "bob", model.MessageRequest, map[string]any{
		"request_type": "review_sketch",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.MessageID)
	assert.False(t, msg.Read)

	// Only bob receives it; draining marks it read and empties the queue.
	got, err := ctrl.GetMessages("bob", true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].FromAgentID)
	assert.True(t, got[0].Read)

	again, err := ctrl.GetMessages("bob", true)
	require.NoError(t, err)
	assert.Empty(t, again)

	carols, err := ctrl.GetMessages("carol", true)
	require.NoError(t, err)
	assert.Empty(t, carols)
}

func TestBroadcastExcludesSender(t *testing.T) {
	ctrl := setupMessagingAgents(t)
	ctx := context.Background()

	_, err := ctrl.SendMessage(ctx, "alice", model.BroadcastRecipient, model.MessageBroadcast, map[string]any{
		"announcement": "merging at noon",
	})
	require.NoError(t, err)

	for _, id := range []string{"bob", "carol"} {
		got, err := ctrl.GetMessages(id, true)
		require.NoError(t, err)
		require.Len(t, got, 1, "agent %s", id)
		assert.Equal(t, model.BroadcastRecipient, got[0].ToAgentID)
	}

	mine, err := ctrl.GetMessages("alice", true)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestMessageContentValidation(t *testing.T) {
	ctrl := setupMessagingAgents(t)
	ctx := context.Background()

	cases := []struct {
		t       model.MessageType
		content map[string]any
	}{
		{model.MessageRequest, map[string]any{}},
		{model.MessageResponse, map[string]any{"request_id": "m1"}}, // missing status
		{model.MessageBroadcast, map[string]any{}},
		{model.MessageError, map[string]any{"error_code": "E1"}}, // missing error_message
		{model.MessageType("gossip"), map[string]any{"x": 1}},
	}
	for _, tc := range cases {
		_, err := ctrl.SendMessage(ctx, "alice", "bob", tc.t, tc.content)
		assert.Error(t, err, "type %s", tc.t)
	}

	// Complete content passes for every type.
	_, err := ctrl.SendMessage(ctx, "alice", "bob", model.MessageResponse, map[string]any{
		"request_id": "m1", "status": "ok",
	})
	assert.NoError(t, err)
	_, err = ctrl.SendMessage(ctx, "alice", "bob", model.MessageError, map[string]any{
		"error_code": "E1", "error_message": "bad sketch",
	})
	assert.NoError(t, err)
}

func TestMessageRequiresKnownEndpoints(t *testing.T) {
	ctrl := setupMessagingAgents(t)
	ctx := context.Background()

	_, err := ctrl.SendMessage(ctx, "ghost", "bob", model.MessageRequest, map[string]any{"request_type": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sender")

	_, err = ctrl.SendMessage(ctx, "alice", "ghost", model.MessageRequest, map[string]any{"request_type": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient")
}

func TestShutdownDiscardsQueue(t *testing.T) {
	ctrl := setupMessagingAgents(t)
	ctx := context.Background()

	_, err := ctrl.SendMessage(ctx, "alice", "bob", model.MessageRequest, map[string]any{"request_type": "x"})
	require.NoError(t, err)
	require.NoError(t, ctrl.ShutdownAgent("bob"))

	_, err = ctrl.GetMessages("bob", true)
	assert.Error(t, err)

	_, err = ctrl.SendMessage(ctx, "alice", "bob", model.MessageRequest, map[string]any{"request_type": "x"})
	assert.Error(t, err)
}

func TestMessageIDsAreMonotonic(t *testing.T) {
	ctrl := setupMessagingAgents(t)
	ctx := context.Background()

	var prev string
	for i := 0; i < 5; i++ {
		msg, err := ctrl.SendMessage(ctx, "alice", "bob", model.MessageRequest, map[string]any{"request_type": "x"})
		require.NoError(t, err)
		if prev != "" {
			assert.Greater(t, msg.MessageID, prev)
		}
		prev = msg.MessageID
	}
}

func TestValidateTimestampSkew(t *testing.T) {
	now := time.Now().UTC()
	ok := &model.AgentMessage{MessageID: "m1", Timestamp: now.Add(30 * time.Second)}
	assert.NoError(t, controller.ValidateTimestamp(ok, now))

	bad := &model.AgentMessage{MessageID: "m2", Timestamp: now.Add(2 * time.Minute)}
	assert.Error(t, controller.ValidateTimestamp(bad, now))
}
