package rtvi

import "time"

// Event is a transport notification. The set of variants is closed.
type Event interface {
	eventName() string
}

// Name returns a stable label for logs and metrics.
func Name(e Event) string {
	if e == nil {
		return "nil"
	}
	return e.eventName()
}

type StatusChanged struct{ State TransportState }

func (StatusChanged) eventName() string { return "status_changed" }

// BotReady signals the remote agent finished initialising. Expiry is zero
// when the transport did not report one.
type BotReady struct {
	Version string
	Expiry  time.Time
}

func (BotReady) eventName() string { return "bot_ready" }

type Connected struct{}

func (Connected) eventName() string { return "connected" }

type Disconnected struct{}

func (Disconnected) eventName() string { return "disconnected" }

type RemoteAudioLevel struct{ Level float64 }

func (RemoteAudioLevel) eventName() string { return "remote_audio_level" }

type LocalAudioLevel struct{ Level float64 }

func (LocalAudioLevel) eventName() string { return "local_audio_level" }

// TrackUpdated reports the local video track. An empty id means no track.
type TrackUpdated struct{ LocalVideoTrackID string }

func (TrackUpdated) eventName() string { return "track_updated" }

type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

type Transcript struct {
	Speaker Speaker
	Text    string
	Final   bool
}

func (Transcript) eventName() string { return "transcript" }

type SpeakingChanged struct {
	Speaker  Speaker
	Speaking bool
}

func (SpeakingChanged) eventName() string { return "speaking_changed" }

type ErrorReported struct{ Message string }

func (ErrorReported) eventName() string { return "error" }
