package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreSaveTrimsCredentials(t *testing.T) {
	s := NewInMemoryStore(Defaults())
	require.NoError(t, s.Save(context.Background(), Credentials{EndpointURL: " https://bots.example.com ", APIKey: " k1 "}))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://bots.example.com", got.EndpointURL)
	require.Equal(t, "k1", got.APIKey)
	require.True(t, got.MicEnabledDefault)
}

func TestSavePreferredMicOnlyWhenProvided(t *testing.T) {
	s := NewInMemoryStore(Settings{PreferredMicID: "usb-1", MicEnabledDefault: true})
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Credentials{EndpointURL: "https://bots.example.com", APIKey: "k1"}))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "usb-1", got.PreferredMicID)

	mic := " headset-2 "
	require.NoError(t, s.Save(ctx, Credentials{EndpointURL: "https://bots.example.com", APIKey: "k1", PreferredMicID: &mic}))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "headset-2", got.PreferredMicID)
}

func TestFileStoreMissingFileYieldsDefaults(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, Defaults(), got)
}

func TestFileStoreSaveKeepsDevicePreferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("preferred_mic_id: usb-1\nmic_enabled_default: false\ncam_enabled_default: true\n"), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), Credentials{EndpointURL: "https://bots.example.com", APIKey: "secret"}))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, Settings{
		EndpointURL:       "https://bots.example.com",
		APIKey:            "secret",
		PreferredMicID:    "usb-1",
		MicEnabledDefault: false,
		CamEnabledDefault: true,
	}, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoint_url: [oops"), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	require.Error(t, err)
}

func TestFileStoreWatchPicksUpExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))
	defer s.Close()

	first, err := s.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, first.EndpointURL)

	require.NoError(t, os.WriteFile(path, []byte("endpoint_url: https://edited.example.com\napi_key: k2\n"), 0o600))

	require.Eventually(t, func() bool {
		got, err := s.Load(ctx)
		return err == nil && got.EndpointURL == "https://edited.example.com"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWithOverridesReplacesStoredValues(t *testing.T) {
	base := NewInMemoryStore(Settings{EndpointURL: "https://stored.example.com", APIKey: "stored"})

	s := WithOverrides(base, Overrides{APIKey: " env-key "})
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://stored.example.com", got.EndpointURL)
	require.Equal(t, "env-key", got.APIKey)

	if WithOverrides(base, Overrides{}) != Store(base) {
		t.Fatalf("blank overrides should return the store unchanged")
	}
}

func TestNewStoreSelectsBackend(t *testing.T) {
	s, err := NewStore(context.Background(), "", "")
	require.NoError(t, err)
	require.IsType(t, &InMemoryStore{}, s)

	s, err = NewStore(context.Background(), "", filepath.Join(t.TempDir(), "s.yaml"))
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, s)
}
