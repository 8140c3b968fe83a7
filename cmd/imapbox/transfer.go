package main

import (
	"github.com/spf13/cobra"

	imap "github.com/mailkit/imapbox"
)

var expungeAfter bool

var moveCmd = &cobra.Command{
	Use:   "move <account> <mailbox> <uids> <target>",
	Short: "Move messages to another mailbox",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(args, (*imap.Mailbox).Move, "moved")
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy <account> <mailbox> <uids> <target>",
	Short: "Copy messages to another mailbox",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransfer(args, (*imap.Mailbox).Copy, "copied")
	},
}

func init() {
	moveCmd.Flags().BoolVar(&expungeAfter, "expunge", false, "expunge the source mailbox afterwards")
	rootCmd.AddCommand(moveCmd, copyCmd)
}

func runTransfer(args []string, transfer func(*imap.Mailbox, any, *imap.Mailbox) error, verb string) error {
	d, source, err := openMailbox(args[0], args[1])
	if err != nil {
		return err
	}
	defer d.Close()

	target, err := d.GetMailbox(args[3])
	if err != nil {
		return err
	}
	it, err := source.MessageSequence(args[2])
	if err != nil {
		return err
	}
	if it.Len() == 0 {
		Warnf("no message matches %s in %s", args[2], source.Name())
		return nil
	}
	if err = transfer(source, it, target); err != nil {
		return err
	}
	Infof("%d message(s) %s from %s to %s", it.Len(), verb, source.Name(), target.Name())

	if expungeAfter {
		return source.Expunge()
	}
	return nil
}
