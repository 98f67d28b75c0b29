package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kmorozov/subctl/internal/config"
	"github.com/kmorozov/subctl/internal/session"
	"github.com/kmorozov/subctl/internal/tokenstore"
	"github.com/kmorozov/subctl/pkg/apiclient"
	"github.com/kmorozov/subctl/pkg/logging"
)

type app struct {
	cfg config.Client

	apiURL   string
	logLevel string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	store *tokenstore.Store
	mgr   *session.Manager
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr)
}

func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newRootCommand(in, out, errOut)
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{
		cfg:    config.LoadClient(),
		stdin:  in,
		stdout: out,
		stderr: errOut,
	}

	cmd := &cobra.Command{
		Use:           "subctl",
		Short:         "Command line client for the subscription service",
		Long:          "subctl logs in to the subscription service, lists purchasable plans, submits payment proof, and tracks subscription status.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "override the service base URL")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newPlansCmd(a),
		newStatusCmd(a),
		newPurchaseCmd(a),
		newUploadCmd(a),
		newRenewCmd(a),
	)
	return cmd
}

// initSession opens the state store and wires the API client and session
// manager. Called lazily so commands like --help never touch the disk.
func (a *app) initSession() error {
	if a.mgr != nil {
		return nil
	}

	if a.apiURL != "" {
		a.cfg.APIBaseURL = a.apiURL
	}
	if a.logLevel != "" {
		a.cfg.LogLevel = a.logLevel
	}

	store, err := tokenstore.Open(a.cfg.StateDB)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	a.store = store

	log := logging.New(a.stderr, a.cfg.LogLevel)
	api := apiclient.New(a.cfg.APIBaseURL, store, log, a.cfg.HTTPTimeout)
	a.mgr = session.NewManager(api, store, log)
	return nil
}

// restore rebuilds the session from persisted tokens and fails with a
// login hint when none exists.
func (a *app) restore(cmd *cobra.Command) error {
	if err := a.initSession(); err != nil {
		return err
	}
	if err := a.mgr.Restore(cmd.Context()); err != nil {
		return err
	}
	if a.mgr.State().User == nil {
		return fmt.Errorf("not logged in, run: subctl login")
	}
	return nil
}

func (a *app) notice() {
	if n := a.mgr.State().Notice; n != "" {
		fmt.Fprintln(a.stderr, n)
	}
}
