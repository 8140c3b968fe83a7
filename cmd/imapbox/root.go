package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	imap "github.com/mailkit/imapbox"
	"github.com/mailkit/imapbox/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "imapbox",
	Short: "IMAP mailbox tools: search, sort, thread, flag, copy and move",
	Long:  "\nIMAP mailbox tools: search, sort, thread, flag, copy and move",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initLog()
		return initConfig()
	},
	SilenceUsage: true,
}

func init() {
	flag := rootCmd.PersistentFlags()
	flag.StringVarP(&global.configFile, "config", "c", "imapbox.yaml", "configuration file")
	flag.BoolVarP(&global.quiet, "quiet", "q", false, "only display warnings and errors")
	flag.BoolVarP(&global.verbose, "verbose", "v", false, "display the IMAP conversation")
}

func initConfig() error {
	var err error
	cfg, err = config.LoadFile(global.configFile)
	if err != nil {
		return fmt.Errorf("cannot open or read configuration file: %w", err)
	}
	return nil
}

func initLog() {
	switch {
	case global.verbose:
		SetLevel(LevelDebug)
	case global.quiet:
		SetLevel(LevelWarn)
	}
	imap.Verbose = global.verbose
	imap.SetLogger(termLogger{})
}

// connect opens an authenticated connection for the named account.
func connect(accountName string) (*imap.Dialer, error) {
	account, err := cfg.Account(accountName)
	if err != nil {
		return nil, err
	}
	imap.TLSSkipVerify = account.SkipTLSVerify

	Debugf("connecting to %s as %s", account.Host, account.Username)
	var d *imap.Dialer
	if account.UsesOAuth2() {
		d, err = imap.NewWithOAuth2(account.Username, account.AccessToken, account.Host, account.Port)
	} else {
		d, err = imap.New(account.Username, account.Password, account.Host, account.Port)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot connect to %s: %w", account.Host, err)
	}
	return d, nil
}

// openMailbox connects and binds one mailbox.
func openMailbox(accountName, mailboxName string) (*imap.Dialer, *imap.Mailbox, error) {
	d, err := connect(accountName)
	if err != nil {
		return nil, nil, err
	}
	m, err := d.GetMailbox(mailboxName)
	if err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, m, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		Error(err)
		os.Exit(1)
	}
}
