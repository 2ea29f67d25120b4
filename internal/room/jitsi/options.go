package jitsi

import (
	"fmt"

	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/room"
)

// ToolbarButtons is the fixed toolbar of the embedded room
var ToolbarButtons = []string{
	"microphone", "camera", "closedcaptions", "desktop", "fullscreen",
	"fodeviceselection", "hangup", "chat", "recording",
	"livestreaming", "etherpad", "sharedvideo", "settings", "raisehand",
	"videoquality", "filmstrip", "feedback", "stats", "shortcuts",
	"tileview", "videobackgroundblur", "download", "help", "mute-everyone", "security",
}

// Options is the constructor argument of JitsiMeetExternalAPI, minus the
// parent node which the page supplies
type Options struct {
	RoomName                 string         `json:"roomName"`
	Width                    string         `json:"width"`
	Height                   int            `json:"height"`
	UserInfo                 UserInfo       `json:"userInfo"`
	ConfigOverwrite          map[string]any `json:"configOverwrite"`
	InterfaceConfigOverwrite map[string]any `json:"interfaceConfigOverwrite"`
}

// UserInfo identifies the local participant
type UserInfo struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

// BuildOptions returns the widget options for a room
func BuildOptions(cfg config.JitsiConfig, rc room.Config) Options {
	language := cfg.Language
	if language == "" {
		language = "fr"
	}

	return Options{
		RoomName: rc.RoomName,
		Width:    "100%",
		Height:   600,
		UserInfo: UserInfo{
			DisplayName: rc.DisplayName,
			Email:       rc.Email,
		},
		ConfigOverwrite: map[string]any{
			"startWithAudioMuted": false,
			"startWithVideoMuted": false,
			"prejoinPageEnabled":  false,
			"disableDeepLinking":  true,
			"toolbarButtons":      ToolbarButtons,
			"settings": map[string]any{
				"language": language,
			},
		},
		InterfaceConfigOverwrite: map[string]any{
			"SHOW_JITSI_WATERMARK":                         false,
			"SHOW_WATERMARK_FOR_GUESTS":                    false,
			"SHOW_POWERED_BY":                              false,
			"SHOW_BRAND_WATERMARK":                         false,
			"SHOW_PROMOTIONAL_SPONSOR":                     false,
			"SHOW_WELCOME_PAGE":                            false,
			"SHOW_WELCOME_PAGE_CONTENT":                    false,
			"SHOW_WELCOME_PAGE_TOOLBAR_ADDITIONAL_CONTENT": false,
			"SHOW_MEETING_NAME":                            true,
			"SHOW_MEETING_NAME_AS_HEADER":                  true,
			"MEETING_NAME":                                 fmt.Sprintf("Conférence %d", rc.ConferenceID),
			"TOOLBAR_ALWAYS_VISIBLE":                       true,
			"SETTINGS_SECTIONS":                            []string{"devices", "language", "moderator", "profile", "calendar"},
			"LANG_DETECTION":                               true,
			"AUTHENTICATION_ENABLE":                        false,
		},
	}
}
