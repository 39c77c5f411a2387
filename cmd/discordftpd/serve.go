package main

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/riverrun/discordftpd/internal/config"
	"github.com/riverrun/discordftpd/internal/discordremote"
	"github.com/riverrun/discordftpd/internal/ftpdriver"
	"github.com/riverrun/discordftpd/internal/logging"
	"github.com/riverrun/discordftpd/internal/vfs"
	"github.com/spf13/cobra"
	ftpserver "goftp.io/server"
)

var serveOpts struct {
	addr         string
	passivePorts string
	publicIP     string
	user         string
	pass         string
	indexPath    string
	logLevel     string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FTP server",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&serveOpts.addr, "addr", ":2121", "address to listen on, host:port")
	flags.StringVar(&serveOpts.passivePorts, "passive-ports", "30000-32000", "passive mode port range")
	flags.StringVar(&serveOpts.publicIP, "public-ip", "", "public IP advertised for passive connections")
	flags.StringVar(&serveOpts.user, "user", "", "FTP username (empty allows anonymous access - insecure)")
	flags.StringVar(&serveOpts.pass, "pass", "", "FTP password")
	flags.StringVar(&serveOpts.indexPath, "index", "data.json", "path to the persisted filesystem index")
	flags.StringVar(&serveOpts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.New("discordftpd", serveOpts.logLevel)

	creds, err := config.FromEnvironment()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}

	remote, err := discordremote.New(creds.Token, creds.ChannelID, log.WithField("module", "discordremote"))
	if err != nil {
		return errors.Wrap(err, "construct discord client")
	}
	if err := remote.VerifyChannel(); err != nil {
		return errors.Wrap(err, "verify configured channel")
	}

	store := vfs.NewStore(serveOpts.indexPath)
	backend := vfs.NewBackend(store, remote, log.WithField("module", "vfs"))
	driver := ftpdriver.NewDriver(backend)

	host, portStr, err := net.SplitHostPort(serveOpts.addr)
	if err != nil {
		return errors.Wrap(err, "parse --addr")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return errors.Wrap(err, "parse --addr port")
	}

	server := ftpserver.NewServer(&ftpserver.ServerOpts{
		Name:           "discordftpd",
		WelcomeMessage: "Welcome to discordftpd",
		Factory:        ftpdriver.NewFactory(driver),
		Hostname:       host,
		Port:           port,
		PublicIP:       serveOpts.publicIP,
		PassivePorts:   serveOpts.passivePorts,
		Auth:           newStaticAuth(serveOpts.user, serveOpts.pass),
	})

	log.WithField("addr", serveOpts.addr).Info("starting FTP server")
	return server.ListenAndServe()
}

// staticAuth checks a single configured username/password pair, or
// allows any credentials through when none was configured.
type staticAuth struct {
	user, pass string
}

func newStaticAuth(user, pass string) *staticAuth {
	return &staticAuth{user: user, pass: pass}
}

// CheckPasswd implements goftp.io/server's Auth interface.
func (a *staticAuth) CheckPasswd(user, pass string) (bool, error) {
	if a.user == "" {
		return true, nil
	}
	return user == a.user && pass == a.pass, nil
}
