package main

import (
	"os"

	"duocall/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagServer  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "peer",
	Short: "Join a duocall room from the terminal",
	Long: `peer is a headless duocall participant. It logs in against a signaling
server, joins a room and negotiates a WebRTC call with whoever else is there,
sending synthetic audio and video.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagServer, "server", "s", "http://localhost:8080", "signaling server URL")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log negotiation details")
	rootCmd.AddCommand(loginCmd, callCmd)
}

func newLogger() *zap.SugaredLogger {
	level := "warn"
	if flagVerbose {
		level = "debug"
	}
	return logger.NewWithFormat(level, "console").Sugar()
}

func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}
