package web

import (
	"bytes"
	"testing"

	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomStatusShowsMountFailure(t *testing.T) {
	env := newTestEnv(t, "")

	state := room.ViewState{
		ConferenceID: 42,
		Access: models.RoomAccessState{
			CanJoin:     true,
			SessionInfo: &models.LiveSession{ID: 7, Title: "Keynote", Status: models.SessionStatusActive},
		},
		Room:      room.Uninitialized,
		RoomError: room.MountFailedMessage,
	}

	var buf bytes.Buffer
	require.NoError(t, env.handler.templates.ExecuteTemplate(&buf, "room_status", liveModel{ViewID: "v1", State: state}))

	body := buf.String()
	assert.Contains(t, body, "Keynote")
	assert.Contains(t, body, "Impossible de charger la salle vidéo")
	assert.Contains(t, body, "Actualiser")

	buf.Reset()
	state.RoomError = ""
	require.NoError(t, env.handler.templates.ExecuteTemplate(&buf, "room_status", liveModel{ViewID: "v1", State: state}))
	assert.NotContains(t, buf.String(), "Impossible de charger la salle vidéo")
}
