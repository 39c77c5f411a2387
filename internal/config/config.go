// Package config reads the process environment this daemon requires,
// mirroring rclone's per-backend Options-struct convention (see
// backend/discord/discord.go's Options) simplified to direct env lookups
// since this standalone daemon has no rclone config file of its own.
package config

import (
	"os"

	"github.com/pkg/errors"
)

// Discord holds the credentials required to talk to the configured
// Discord channel.
type Discord struct {
	Token     string
	ChannelID string
}

// FromEnvironment reads DISCORD_TOKEN and DISCORD_CHANNEL_ID, both
// required, per spec.md §6.
func FromEnvironment() (Discord, error) {
	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		return Discord{}, errors.New("DISCORD_TOKEN is required")
	}
	channelID := os.Getenv("DISCORD_CHANNEL_ID")
	if channelID == "" {
		return Discord{}, errors.New("DISCORD_CHANNEL_ID is required")
	}
	return Discord{Token: token, ChannelID: channelID}, nil
}
