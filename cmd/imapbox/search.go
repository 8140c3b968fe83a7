package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	imap "github.com/mailkit/imapbox"
)

type searchFlags struct {
	subject string
	body    string
	from    string
	since   string
	unseen  bool
	sort    string
	desc    bool
	charset string
	limit   int
}

var searchOpts searchFlags

var searchCmd = &cobra.Command{
	Use:   "search <account> <mailbox>",
	Short: "Search (and optionally sort) the messages of a mailbox",
	Args:  cobra.ExactArgs(2),
	RunE:  runSearch,
}

func init() {
	flag := searchCmd.Flags()
	flag.StringVar(&searchOpts.subject, "subject", "", "subject contains")
	flag.StringVar(&searchOpts.body, "body", "", "body contains")
	flag.StringVar(&searchOpts.from, "from", "", "sender contains")
	flag.StringVar(&searchOpts.since, "since", "", "received on or after this date (YYYY-MM-DD)")
	flag.BoolVar(&searchOpts.unseen, "unseen", false, "only unread messages")
	flag.StringVar(&searchOpts.sort, "sort", "", "server side sort key: arrival, cc, date, from, size, subject, to")
	flag.BoolVar(&searchOpts.desc, "desc", false, "reverse the sort order")
	flag.StringVar(&searchOpts.charset, "charset", "", "charset to send text criteria in")
	flag.IntVar(&searchOpts.limit, "limit", 50, "maximum number of messages displayed, 0 for all")
	rootCmd.AddCommand(searchCmd)
}

// query turns the command line flags into a mailbox query.
func (f searchFlags) query() (imap.Query, error) {
	criteria := imap.NewSearch()
	if f.subject != "" {
		criteria.Add(imap.Subject(f.subject))
	}
	if f.body != "" {
		criteria.Add(imap.Body(f.body))
	}
	if f.from != "" {
		criteria.Add(imap.From(f.from))
	}
	if f.since != "" {
		since, err := time.Parse(time.DateOnly, f.since)
		if err != nil {
			return imap.Query{}, fmt.Errorf("invalid --since date: %w", err)
		}
		criteria.Add(imap.Since(since))
	}
	if f.unseen {
		criteria.Add(imap.Unseen)
	}

	q := imap.Query{Criteria: criteria, Descending: f.desc, Charset: f.charset}
	if f.sort != "" {
		key, err := imap.ParseSortKey(f.sort)
		if err != nil {
			return imap.Query{}, err
		}
		q.Sort = key
	}
	return q, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	q, err := searchOpts.query()
	if err != nil {
		return err
	}
	d, m, err := openMailbox(args[0], args[1])
	if err != nil {
		return err
	}
	defer d.Close()

	it, err := m.Messages(q)
	if err != nil {
		return err
	}
	Infof("%d message(s) found in %s", it.Len(), m.Name())

	table := pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"UID", "Received", "From", "Subject", "Size", "Flags"},
	})
	shown := 0
	for msg := range it.All() {
		if searchOpts.limit > 0 && shown == searchOpts.limit {
			break
		}
		row, err := messageRow(msg)
		if err != nil {
			Warnf("%v", err)
			continue
		}
		table.Data = append(table.Data, row)
		shown++
	}
	return table.Render()
}

func messageRow(msg *imap.Message) ([]string, error) {
	subject, err := msg.Subject()
	if err != nil {
		return nil, err
	}
	received, _ := msg.InternalDate()
	from, _ := msg.From()
	size, _ := msg.Size()
	flags, _ := msg.Flags()
	return []string{
		strconv.FormatUint(uint64(msg.UID()), 10),
		received.Local().Format(time.DateTime),
		from.String(),
		subject,
		humanize.Bytes(size),
		strings.Join(flags, " "),
	}, nil
}
