package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults used when the environment provides no overrides.
const (
	defaultServerURL      = "http://localhost:3005"
	defaultDeviceName     = "TecnoAcceso"
	defaultConnectTimeout = 15 * time.Second
	defaultPollInterval   = 3 * time.Second
)

// Config holds panel client configuration.
type Config struct {
	// ServerURL is the base URL of the gateway server API.
	ServerURL string

	// Home is the directory where the panel stores local state: the ledger
	// cache, cross-process markers, and stored credentials. All panel
	// processes on one machine share it.
	Home string
	// CredentialsPath is the path to the stored login credentials file.
	CredentialsPath string

	// DeviceName is the advertised name the transport discovery filters on.
	DeviceName string
	// BridgeURL is the websocket URL of the wireless bridge exposing the
	// actuator. Empty means no bridge is configured and commands run in
	// simulation mode.
	BridgeURL string
	// ConnectTimeout bounds device discovery and handshake. A hung discovery
	// resolves to a transport-unavailable fault instead of blocking forever.
	ConnectTimeout time.Duration

	// PollInterval is the sync engine poll interval for admin observers.
	PollInterval time.Duration

	// PushoverToken and PushoverUser enable push delivery of emergency
	// alerts when both are set.
	PushoverToken string
	PushoverUser  string

	// Debug enables verbose logging.
	Debug bool
}

// Load loads configuration from environment and defaults.
func Load() (*Config, error) {
	home := os.Getenv("TECNOACCESO_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		home = filepath.Join(userHome, ".tecnoacceso")
	}
	if err := os.MkdirAll(home, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create panel home: %w", err)
	}

	serverURL := os.Getenv("TECNOACCESO_SERVER_URL")
	if serverURL == "" {
		serverURL = defaultServerURL
	}

	deviceName := os.Getenv("TECNOACCESO_DEVICE_NAME")
	if deviceName == "" {
		deviceName = defaultDeviceName
	}

	connectTimeout := defaultConnectTimeout
	if raw := os.Getenv("TECNOACCESO_CONNECT_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid TECNOACCESO_CONNECT_TIMEOUT %q", raw)
		}
		connectTimeout = d
	}

	pollInterval := defaultPollInterval
	if raw := os.Getenv("TECNOACCESO_POLL_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid TECNOACCESO_POLL_INTERVAL %q", raw)
		}
		pollInterval = d
	}

	debug := os.Getenv("TECNOACCESO_DEBUG") == "true" || os.Getenv("TECNOACCESO_DEBUG") == "1"

	return &Config{
		ServerURL:       serverURL,
		Home:            home,
		CredentialsPath: filepath.Join(home, "credentials.json"),
		DeviceName:      deviceName,
		BridgeURL:       os.Getenv("TECNOACCESO_BRIDGE_URL"),
		ConnectTimeout:  connectTimeout,
		PollInterval:    pollInterval,
		PushoverToken:   os.Getenv("TECNOACCESO_PUSHOVER_TOKEN"),
		PushoverUser:    os.Getenv("TECNOACCESO_PUSHOVER_USER"),
		Debug:           debug,
	}, nil
}
