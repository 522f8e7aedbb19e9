// Package query provides the "rosterbot query" command for searching the
// roster from the terminal.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klytics/rosterbot/internal/app"
	"github.com/klytics/rosterbot/internal/commands"
	"github.com/klytics/rosterbot/internal/config"
	"github.com/klytics/rosterbot/internal/output"
	"github.com/klytics/rosterbot/internal/roster"
)

// Result is the --json payload.
type Result struct {
	Count   int                 `json:"count"`
	Columns []string            `json:"columns"`
	Records []map[string]string `json:"records"`
}

type options struct {
	column string
	where  []string
	cards  bool
	stats  bool
	limit  int
}

// NewCommand returns the query command.
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Search the roster",
		Long: `Search the loaded roster without going through WhatsApp.

  rosterbot query walid                    any column contains "walid"
  rosterbot query --column الغرفة 101       one column contains "101"
  rosterbot query --where الصفة=Chef        exact match on every condition
  rosterbot query                          every record`,
		Example: `  rosterbot query hilton --cards
  rosterbot query --where "الفدق=Hilton" --where "الغرفة=101" --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd, cfg, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.column, "column", "", "Restrict the text search to one column")
	cmd.Flags().StringArrayVar(&opts.where, "where", nil, "column=value condition (repeatable, all must match)")
	cmd.Flags().BoolVar(&opts.cards, "cards", false, "Render results as the bot would reply")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Show table statistics instead of records")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Show at most N records")
	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config, args []string, opts options) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	store := roster.New(cfg.Data.Path, cfg.Data.Sheet)
	if err := store.Load(); err != nil {
		if jsonOut {
			output.PrintJSONError("query", err, output.ExitSystemError)
		}
		return fmt.Errorf("could not load %s: %w", cfg.Data.Path, err)
	}

	if opts.stats {
		if jsonOut {
			return output.FprintJSON(out, "query", store.Stats())
		}
		_, err := fmt.Fprint(out, commands.FormatStats(store.Stats()))
		return err
	}

	records, err := selectRecords(store, args, opts)
	if err != nil {
		return err
	}
	if opts.limit > 0 && len(records) > opts.limit {
		records = records[:opts.limit]
	}

	if jsonOut {
		res := Result{Count: len(records), Columns: store.Columns(), Records: make([]map[string]string, 0, len(records))}
		for _, r := range records {
			res.Records = append(res.Records, r.Map())
		}
		return output.FprintJSON(out, "query", res)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, commands.MsgNoData)
		return nil
	}

	var sb strings.Builder
	if opts.cards {
		sb.WriteString(cfg.Fields.WithDefaults().FormatList(fmt.Sprintf("%d record(s)", len(records)), records))
	} else {
		rows := make([][]string, 0, len(records))
		for _, r := range records {
			rows = append(rows, r.Values())
		}
		output.NewWriter(&sb).WriteTable(store.Columns(), rows)
	}

	content := sb.String()
	if output.ShouldPage(content, output.TermHeight()) {
		return output.Page(content)
	}
	_, err = fmt.Fprint(out, content)
	return err
}

func selectRecords(store *roster.Store, args []string, opts options) ([]roster.Record, error) {
	text := ""
	if len(args) == 1 {
		text = strings.TrimSpace(args[0])
	}

	switch {
	case len(opts.where) > 0:
		if text != "" || opts.column != "" {
			return nil, errors.New("--where cannot be combined with a text search")
		}
		conds := make([]roster.Condition, 0, len(opts.where))
		for _, w := range opts.where {
			c, err := roster.ParseCondition(w)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		return store.Filter(conds), nil
	case opts.column != "":
		return store.SearchByColumn(opts.column, text), nil
	case text != "":
		return store.Search(text), nil
	default:
		return store.All(), nil
	}
}
