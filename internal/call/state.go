package call

import (
	"math"

	"github.com/ent0n29/botcall/internal/countdown"
	"github.com/ent0n29/botcall/internal/notice"
	"github.com/ent0n29/botcall/internal/rtvi"
)

// State is the observable projection of the call. IsBotReady and
// RemainingSeconds are only set while IsInCall is true.
type State struct {
	TransportStatus   rtvi.TransportState `json:"transport_status"`
	IsInCall          bool                `json:"is_in_call"`
	IsBotReady        bool                `json:"is_bot_ready"`
	MicEnabled        bool                `json:"mic_enabled"`
	CamEnabled        bool                `json:"cam_enabled"`
	MicDeviceID       string              `json:"mic_device_id,omitempty"`
	LocalVideoTrackID string              `json:"local_video_track_id,omitempty"`
	LocalAudioLevel   float64             `json:"local_audio_level"`
	RemoteAudioLevel  float64             `json:"remote_audio_level"`
	RemainingSeconds  *int                `json:"remaining_seconds"`
	RemainingLabel    string              `json:"remaining_label,omitempty"`
	Notice            *notice.Notice      `json:"notice"`
	Generation        uint64              `json:"generation"`
}

func initialState() State {
	return State{TransportStatus: rtvi.StateIdle}
}

func (s State) clone() State {
	if s.RemainingSeconds != nil {
		v := *s.RemainingSeconds
		s.RemainingSeconds = &v
	}
	if s.Notice != nil {
		n := *s.Notice
		s.Notice = &n
	}
	return s
}

func (s State) withLabel() State {
	s.RemainingLabel = ""
	if s.RemainingSeconds != nil {
		s.RemainingLabel = countdown.FormatRemaining(*s.RemainingSeconds)
	}
	return s
}

func clampLevel(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
