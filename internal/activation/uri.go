// Package activation builds and parses the URI that wakes the host for a
// session, and launches it.
package activation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultScheme = "relaymic"
	action        = "dictate"
	sessionParam  = "session"
)

var ErrInvalidURI = errors.New("invalid activation uri")

// Build returns scheme://dictate?session=<id>.
func Build(scheme, sessionID string) string {
	if scheme == "" {
		scheme = DefaultScheme
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     action,
		RawQuery: url.Values{sessionParam: {sessionID}}.Encode(),
	}
	return u.String()
}

// Parse extracts the session id from an activation URI.
func Parse(raw, scheme string) (string, error) {
	if scheme == "" {
		scheme = DefaultScheme
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if !strings.EqualFold(u.Scheme, scheme) {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidURI, u.Scheme)
	}
	target := u.Host
	if target == "" {
		target = strings.Trim(u.Opaque+u.Path, "/")
	}
	if !strings.EqualFold(target, action) {
		return "", fmt.Errorf("%w: action %q", ErrInvalidURI, target)
	}
	id := strings.TrimSpace(u.Query().Get(sessionParam))
	if id == "" {
		return "", fmt.Errorf("%w: missing %s", ErrInvalidURI, sessionParam)
	}
	return id, nil
}
