package main

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var threadCmd = &cobra.Command{
	Use:   "thread <account> <mailbox>",
	Short: "Display the REFERENCES threads of a mailbox as a flat node table",
	Args:  cobra.ExactArgs(2),
	RunE:  runThread,
}

func init() {
	rootCmd.AddCommand(threadCmd)
}

func runThread(cmd *cobra.Command, args []string) error {
	d, m, err := openMailbox(args[0], args[1])
	if err != nil {
		return err
	}
	defer d.Close()

	thread, err := m.Thread()
	if err != nil {
		return err
	}
	table := pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Node", "UID", "Next", "Branch"},
	})
	for i, node := range thread.Nodes {
		table.Data = append(table.Data, []string{
			strconv.Itoa(i), strconv.Itoa(node.Num), strconv.Itoa(node.Next), strconv.Itoa(node.Branch),
		})
	}
	return table.Render()
}
