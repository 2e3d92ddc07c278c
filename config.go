package glimesh

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glimesh/glimesh-go-sdk/transport"
)

const (
	DefaultHost              = "glimesh.tv"
	DefaultHeartbeatInterval = 29 * time.Second
	DefaultJoinTimeout       = 30 * time.Second

	protocolVersion = "2.0.0"
)

// HTTPDoer sends lookup requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds connection parameters.
type Config struct {
	Host        string // API host (e.g. "glimesh.tv")
	Endpoint    string // WebSocket URL, derived from Host if empty
	APIEndpoint string // GraphQL HTTP URL, derived from Host if empty

	Token    string // OAuth bearer token, read-write
	ClientID string // public client id, read-only

	HeartbeatInterval time.Duration
	JoinTimeout       time.Duration
	Compression       bool // offer permessage-deflate

	Dialer     transport.Dialer
	HTTPClient HTTPDoer
	Logger     *slog.Logger
}

// Credentials returns the auth inputs of c.
func (c Config) Credentials() Credentials {
	return Credentials{Token: c.Token, ClientID: c.ClientID}
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Endpoint == "" {
		c.Endpoint = "wss://" + c.Host + "/api/socket/websocket"
	}
	if c.APIEndpoint == "" {
		c.APIEndpoint = "https://" + c.Host + "/api"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = DefaultJoinTimeout
	}
	if c.Dialer == nil {
		c.Dialer = transport.WSDialer{Compression: c.Compression}
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// socketURL appends the protocol version and auth suffix to the endpoint.
func socketURL(endpoint string, auth Auth) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + "vsn=" + protocolVersion + "&" + auth.Suffix
}

// ConfigFromEnv loads configuration from environment variables.
// Falls back to defaults for any missing or unparsable values.
func ConfigFromEnv() Config {
	cfg := Config{
		Host:        os.Getenv("GLIMESH_HOST"),
		Endpoint:    os.Getenv("GLIMESH_SOCKET_URL"),
		APIEndpoint: os.Getenv("GLIMESH_API_URL"),
		Token:       os.Getenv("GLIMESH_TOKEN"),
		ClientID:    os.Getenv("GLIMESH_CLIENT_ID"),
	}
	if v := os.Getenv("GLIMESH_HEARTBEAT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("GLIMESH_JOIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.JoinTimeout = d
		}
	}
	if v := os.Getenv("GLIMESH_COMPRESSION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Compression = b
		}
	}
	return cfg
}
