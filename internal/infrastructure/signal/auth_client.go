package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"duocall/internal/core/domain"
)

var authHTTPClient = &http.Client{Timeout: 15 * time.Second}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	RoomID   string `json:"roomId"`
}

// Login asks the server's /auth endpoint for a signaling token.
func Login(ctx context.Context, serverURL, username, password string, roomID domain.RoomID) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/auth"

	body, err := json.Marshal(loginRequest{Username: username, Password: password, RoomID: string(roomID)})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := authHTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Token   string `json:"token"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode auth response (%s): %w", resp.Status, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", domain.ErrInvalidCredential
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("auth rejected (%s): %s", resp.Status, out.Message)
	case out.Token == "":
		return "", errors.New("auth response carried no token")
	}
	return out.Token, nil
}
