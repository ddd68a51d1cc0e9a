package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duocall/internal/core/domain"
	signalinfra "duocall/internal/infrastructure/signal"
	"duocall/pkg/validation"

	"github.com/spf13/cobra"
)

var (
	flagUser     string
	flagPassword string
	flagRoom     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain a signaling token for a room",
	Long: `Exchange a username, password and room id for a token.

Examples:
  peer login --user alice --password password123 --room room1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := login(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, callCmd} {
		c.Flags().StringVarP(&flagUser, "user", "u", "", "username")
		c.Flags().StringVarP(&flagPassword, "password", "p", "", "password")
		c.Flags().StringVarP(&flagRoom, "room", "r", "", "room id")
	}
}

func login(ctx context.Context) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validation.ValidateServerURL(flagServer); err != nil {
		return "", err
	}
	if flagUser == "" || flagPassword == "" || flagRoom == "" {
		return "", errors.New("--user, --password and --room are required")
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	token, err := signalinfra.Login(ctx, flagServer, flagUser, flagPassword, domain.RoomID(flagRoom))
	if errors.Is(err, domain.ErrInvalidCredential) {
		return "", errors.New("invalid credentials")
	}
	return token, err
}
