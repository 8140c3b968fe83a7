package main

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <account> <mailbox>",
	Short: "Display the status of a mailbox",
	Args:  cobra.ExactArgs(2),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, m, err := openMailbox(args[0], args[1])
	if err != nil {
		return err
	}
	defer d.Close()

	status, err := m.DefaultStatus()
	if err != nil {
		return err
	}

	table := pterm.DefaultTable.WithData(pterm.TableData{
		{"Mailbox", m.FullEncodedName()},
	})
	for _, row := range []struct {
		label string
		value func() (uint32, bool)
	}{
		{"Messages", status.MessageCount},
		{"Recent", status.RecentCount},
		{"Unseen", status.UnseenCount},
		{"UID next", status.NextUID},
		{"UID validity", status.Validity},
	} {
		table.Data = append(table.Data, []string{row.label, optional(row.value())})
	}
	return table.Render()
}

func optional(v uint32, ok bool) string {
	if !ok {
		return "-"
	}
	return strconv.FormatUint(uint64(v), 10)
}
