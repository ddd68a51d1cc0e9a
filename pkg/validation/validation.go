package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	roomIDPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) > 64 {
		return fmt.Errorf("username is too long (max 64 characters)")
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, '.', '_', '-' allowed)")
	}
	return nil
}

func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	// bcrypt ignores everything past 72 bytes.
	if len(password) > 72 {
		return fmt.Errorf("password is too long (max 72 bytes)")
	}
	return nil
}

func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(roomID) > 128 {
		return fmt.Errorf("room ID is too long (max 128 characters)")
	}
	if !roomIDPattern.MatchString(roomID) {
		return fmt.Errorf("invalid room ID format")
	}
	return nil
}

// ValidateServerURL accepts http(s) and ws(s) base URLs.
func ValidateServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("server URL scheme must be http, https, ws or wss")
	}
	if u.Host == "" {
		return fmt.Errorf("server URL must include a host")
	}
	return nil
}
