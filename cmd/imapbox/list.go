package main

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <account>",
	Short: "Display list of mailboxes",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	d, err := connect(args[0])
	if err != nil {
		return err
	}
	defer d.Close()

	mailboxes, err := d.Mailboxes()
	if err != nil {
		return err
	}
	stats, err := d.MailboxStats()
	if err != nil {
		return err
	}
	counts := make(map[string]string, len(stats))
	for _, s := range stats {
		if s.Error != nil {
			Warnf("%s: %v", s.Name, s.Error)
			continue
		}
		counts[s.Name] = strconv.Itoa(s.Count)
	}

	table := pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Mailbox", "Encoded", "Delimiter", "Messages", "Attributes"},
	})
	for _, m := range mailboxes {
		table.Data = append(table.Data, []string{
			m.Name(), m.EncodedName(), m.Delimiter(), counts[m.Name()], m.Attributes().String(),
		})
	}
	return table.Render()
}
