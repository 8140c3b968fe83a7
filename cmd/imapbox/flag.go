package main

import (
	"github.com/spf13/cobra"
)

var clearFlag bool

var flagCmd = &cobra.Command{
	Use:   "flag <account> <mailbox> <uids> <flag>",
	Short: `Set (or clear) a flag such as \Seen on a UID set like "1:4,7"`,
	Args:  cobra.ExactArgs(4),
	RunE:  runFlag,
}

func init() {
	flagCmd.Flags().BoolVar(&clearFlag, "clear", false, "clear the flag instead of setting it")
	rootCmd.AddCommand(flagCmd)
}

func runFlag(cmd *cobra.Command, args []string) error {
	d, m, err := openMailbox(args[0], args[1])
	if err != nil {
		return err
	}
	defer d.Close()

	uids, flag := args[2], args[3]
	if clearFlag {
		err = m.ClearFlag(flag, uids)
	} else {
		err = m.SetFlag(flag, uids)
	}
	if err != nil {
		return err
	}
	Infof("flag %s updated on %s", flag, uids)
	return nil
}
