package main

import (
	"github.com/spf13/cobra"
)

// rootCmd is grounded on rclone's own cobra convention of a package-level
// Root command that subcommands attach themselves to (see
// backend/torrent/cmd/backend.go's cmd.Root.AddCommand), generalized here
// to a standalone binary with a single "serve" subcommand.
var rootCmd = &cobra.Command{
	Use:   "discordftpd",
	Short: "Serve a Discord channel as an FTP file-storage backend",
	Long: `discordftpd chunks arbitrary files, uploads them as message
attachments on a configured Discord channel, and serves the result over
FTP. A local index (data.json) in the working directory tracks the virtual
filesystem hierarchy and the message IDs/attachment URLs that reconstitute
each file.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
