package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/duocall/internal/config"
)

var (
	flagConfig string
	flagRelay  string
	flagRoom   string
	flagName   string
	flagNoCam  bool
)

var rootCmd = &cobra.Command{
	Use:   "duocall-peer",
	Short: "Join a two-party call through a duocall relay",
	Long: `duocall-peer joins a room on a duocall relay server and negotiates a WebRTC
session with whoever else is in it. Synthetic audio and video are sent.

Send SIGUSR1 to switch between camera and screen, SIGUSR2 to mute remote audio.
Interrupt to end the call.

Examples:
  duocall-peer --room standup --name alice
  duocall-peer --relay ws://relay.example.com/api/ws/signal --room standup --name bob`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(cfg.Level())
		return runPeer(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to a yaml config file (default config/config.<CONFIG_ENV>.yaml)")
	rootCmd.Flags().StringVarP(&flagRelay, "relay", "r", "", "relay websocket url")
	rootCmd.Flags().StringVar(&flagRoom, "room", "", "room to join")
	rootCmd.Flags().StringVarP(&flagName, "name", "n", "", "participant name")
	rootCmd.Flags().BoolVar(&flagNoCam, "audio-only", false, "do not send video")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("relay") {
		cfg.Peer.RelayURL = flagRelay
	}
	if cmd.Flags().Changed("room") {
		cfg.Peer.Room = flagRoom
	}
	if cmd.Flags().Changed("name") {
		cfg.Peer.Name = flagName
	}
	if flagNoCam {
		cfg.Peer.Video = false
	}
	if cfg.Peer.Room == "" || cfg.Peer.Name == "" {
		return nil, fmt.Errorf("room and name are required")
	}
	return cfg, nil
}

// Execute runs the root command. Called once by main.
func Execute() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("duocall-peer failed")
		cancel()
		os.Exit(1)
	}
}
