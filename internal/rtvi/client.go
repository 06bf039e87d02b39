package rtvi

import (
	"context"
	"time"
)

// Client is a single transport session. Blocking calls honour ctx; callers
// that must not block run them on their own goroutine.
type Client interface {
	Start(ctx context.Context) error
	Disconnect(ctx context.Context) error
	EnableMic(ctx context.Context, enable bool) (bool, error)
	EnableCam(ctx context.Context, enable bool) (bool, error)
	// UpdateMic switches the input device and returns the one now in use.
	UpdateMic(ctx context.Context, deviceID string) (string, error)
	IsMicEnabled() bool
	IsCamEnabled() bool
	SessionExpiry() (time.Time, bool)
	// Events is closed once the client has been torn down.
	Events() <-chan Event
}

// Factory instantiates a client bound to opts.
type Factory func(opts ClientOptions) (Client, error)
