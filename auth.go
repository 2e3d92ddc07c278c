package glimesh

import (
	"net/http"
	"net/url"
)

// Mode is the access level a connection is authenticated with.
type Mode int

const (
	// ReadWrite connections authenticate with a bearer token.
	ReadWrite Mode = iota
	// ReadOnly connections authenticate with a public client id. The server
	// rejects mutations from them.
	ReadOnly
)

func (m Mode) String() string {
	switch m {
	case ReadWrite:
		return "read-write"
	case ReadOnly:
		return "read-only"
	default:
		return "unknown"
	}
}

// Credentials select how the client authenticates. Token wins over ClientID.
type Credentials struct {
	Token    string
	ClientID string
}

// Auth is the resolved form of Credentials.
type Auth struct {
	// Suffix is appended to the socket URL query string.
	Suffix string
	// Header carries the Authorization header for HTTP lookups.
	Header http.Header
	Mode   Mode
}

// ResolveAuth picks the connection mode for creds. It returns
// ErrNoCredentials when neither a token nor a client id is set.
func ResolveAuth(creds Credentials) (Auth, error) {
	switch {
	case creds.Token != "":
		return Auth{
			Suffix: url.Values{"token": {creds.Token}}.Encode(),
			Header: http.Header{"Authorization": {"Bearer " + creds.Token}},
			Mode:   ReadWrite,
		}, nil
	case creds.ClientID != "":
		return Auth{
			Suffix: url.Values{"client_id": {creds.ClientID}}.Encode(),
			Header: http.Header{"Authorization": {"Client-ID " + creds.ClientID}},
			Mode:   ReadOnly,
		}, nil
	}
	return Auth{}, ErrNoCredentials
}
