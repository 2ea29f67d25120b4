package jitsi_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/room"
	"github.com/navikt/liveroom/internal/room/jitsi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	stream  string
	event   string
	payload map[string]any
}

type recordingBridge struct {
	mu        sync.Mutex
	connected bool
	events    []published
}

func (b *recordingBridge) Publish(streamID, event string, payload []byte) error {
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{stream: streamID, event: event, payload: decoded})
	return nil
}

func (b *recordingBridge) Connected(string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *recordingBridge) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.events))
	for _, e := range b.events {
		names = append(names, e.event)
	}
	return names
}

func (b *recordingBridge) last() published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[len(b.events)-1]
}

var testConfig = config.JitsiConfig{
	Domain:     "meet.example.org",
	ScriptURL:  "https://meet.example.org/external_api.js",
	RoomPrefix: "vrtlconf-conference",
	Language:   "fr",
}

func TestBuildOptions(t *testing.T) {
	opts := jitsi.BuildOptions(testConfig, room.Config{
		ConferenceID: 42,
		RoomName:     "vrtlconf-conference-42",
		DisplayName:  "Ada Lovelace",
	})

	assert.Equal(t, "vrtlconf-conference-42", opts.RoomName)
	assert.Equal(t, "100%", opts.Width)
	assert.Equal(t, 600, opts.Height)
	assert.Equal(t, "Ada Lovelace", opts.UserInfo.DisplayName)
	assert.Equal(t, false, opts.ConfigOverwrite["prejoinPageEnabled"])
	assert.Contains(t, opts.ConfigOverwrite["toolbarButtons"], "hangup")
	assert.Equal(t, map[string]any{"language": "fr"}, opts.ConfigOverwrite["settings"])
	assert.Equal(t, "Conférence 42", opts.InterfaceConfigOverwrite["MEETING_NAME"])
	assert.Equal(t, false, opts.InterfaceConfigOverwrite["SHOW_JITSI_WATERMARK"])
}

func TestProviderWithoutPage(t *testing.T) {
	provider := jitsi.NewProvider(testConfig, &recordingBridge{}, "view-1")

	_, err := provider.LoadScript(context.Background())
	assert.ErrorIs(t, err, room.ErrNoContainer)
}

func TestProviderLifecycle(t *testing.T) {
	bridge := &recordingBridge{connected: true}
	provider := jitsi.NewProvider(testConfig, bridge, "view-1")

	script, err := provider.LoadScript(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://meet.example.org/external_api.js", bridge.last().payload["url"])

	handle, err := provider.Create(context.Background(), room.Config{ConferenceID: 42, RoomName: "vrtlconf-conference-42"})
	require.NoError(t, err)

	created := bridge.last()
	assert.Equal(t, "view-1", created.stream)
	assert.Equal(t, jitsi.EventCreate, created.event)
	assert.Equal(t, "meet.example.org", created.payload["domain"])
	instance, _ := created.payload["instance"].(string)
	require.NotEmpty(t, instance)

	var received []room.Event
	handle.Subscribe(func(e room.Event) { received = append(received, e) })

	require.NoError(t, provider.Deliver(instance, room.Event{Type: room.EventConferenceJoined}))
	assert.ErrorIs(t, provider.Deliver("other", room.Event{Type: room.EventConferenceJoined}), jitsi.ErrUnknownInstance)
	require.Len(t, received, 1)

	require.NoError(t, handle.ExecuteCommand(room.CommandHangup))
	assert.Equal(t, room.CommandHangup, bridge.last().payload["name"])

	require.NoError(t, handle.Dispose())
	require.NoError(t, handle.Dispose())
	script.Release()
	script.Release()

	assert.Equal(t, []string{
		jitsi.EventLoadScript,
		jitsi.EventCreate,
		jitsi.EventCommand,
		jitsi.EventDispose,
		jitsi.EventReleaseScript,
	}, bridge.names())

	assert.ErrorIs(t, provider.Deliver(instance, room.Event{Type: room.EventConferenceLeft}), jitsi.ErrUnknownInstance)
	assert.Error(t, handle.ExecuteCommand(room.CommandHangup))
}

func TestProviderDrivesController(t *testing.T) {
	bridge := &recordingBridge{connected: true}
	provider := jitsi.NewProvider(testConfig, bridge, "view-1")
	controller := room.NewController(provider, room.Options{RoomPrefix: testConfig.RoomPrefix})

	err := controller.Mount(context.Background(), models.AccessResult{
		ConferenceID: 42,
		CanJoin:      true,
		Session:      &models.LiveSession{ID: 7},
	})
	require.NoError(t, err)

	instance, _ := bridge.last().payload["instance"].(string)
	require.NoError(t, provider.Deliver(instance, room.Event{Type: room.EventConferenceJoined}))
	assert.Equal(t, room.InRoom, controller.State())

	controller.Unmount()
	assert.Equal(t, []string{
		jitsi.EventLoadScript,
		jitsi.EventCreate,
		jitsi.EventCommand,
		jitsi.EventDispose,
		jitsi.EventReleaseScript,
	}, bridge.names())
}

func TestProviderQueuesEventsBeforeSubscribe(t *testing.T) {
	bridge := &recordingBridge{connected: true}
	provider := jitsi.NewProvider(testConfig, bridge, "view-1")

	handle, err := provider.Create(context.Background(), room.Config{ConferenceID: 42, RoomName: "vrtlconf-conference-42"})
	require.NoError(t, err)
	instance, _ := bridge.last().payload["instance"].(string)

	require.NoError(t, provider.Deliver(instance, room.Event{Type: room.EventConferenceJoined}))
	require.NoError(t, provider.Deliver(instance, room.Event{Type: room.EventParticipantJoined, ParticipantID: "p1", DisplayName: "Ada"}))

	var received []room.EventType
	handle.Subscribe(func(e room.Event) { received = append(received, e.Type) })
	assert.Equal(t, []room.EventType{room.EventConferenceJoined, room.EventParticipantJoined}, received)
}
