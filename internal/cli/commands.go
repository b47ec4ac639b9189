package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/snippet-catalog/internal/auth"
	"github.com/sakif/snippet-catalog/internal/model"
	"github.com/sakif/snippet-catalog/internal/service"
)

// options are the persistent flags every command shares.
type options struct {
	server  string
	token   string
	jsonOut bool
}

func (o *options) client() *Client {
	return NewClient(o.server, o.token)
}

// NewRootCmd builds the snippetctl command tree.
//
// Flags fall back to SNIPPETS_SERVER and SNIPPETS_TOKEN, so a logged-in
// shell can `export SNIPPETS_TOKEN=$(snippetctl login)` once.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "snippetctl",
		Short:         "Search and manage a snippet catalog from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("SNIPPETS_SERVER", DefaultServerURL), "catalog server URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("SNIPPETS_TOKEN"), "owner session token (for writes)")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print raw JSON instead of a table")

	root.AddCommand(
		newSearchCmd(opts),
		newSuggestCmd(opts),
		newHistoryCmd(opts),
		newPopularCmd(opts),
		newAddCmd(opts),
		newLoginCmd(opts),
		newHashPasswordCmd(),
	)
	return root
}

func newSearchCmd(opts *options) *cobra.Command {
	var (
		languages, tags              []string
		dateRange, sortBy, sortOrder string
		limit                        int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search snippets by text and filters",
		Example: `  snippetctl search "react hooks" --tag react
  snippetctl search --lang python --tag basic --sort createdAt --order asc`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			if len(args) == 1 {
				params.Set("q", args[0])
			}
			setCSV(params, "languages", languages)
			setCSV(params, "tags", tags)
			setIf(params, "dateRange", dateRange)
			setIf(params, "sortBy", sortBy)
			setIf(params, "sortOrder", sortOrder)
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}

			result, err := opts.client().Search(cmd.Context(), params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Warning != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", result.Warning)
			}
			if opts.jsonOut {
				return printJSON(out, result.Hits)
			}
			if len(result.Hits) == 0 {
				fmt.Fprintln(out, "No snippets found.")
				return nil
			}

			rows := make([][]string, len(result.Hits))
			for i, h := range result.Hits {
				rows[i] = []string{h.ID, truncate(h.Title, 40), h.Language, tagNames(h.Tags), formatTime(h.CreatedAt)}
			}
			renderTable(out, []string{"ID", "Title", "Language", "Tags", "Created"}, rows)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&languages, "lang", "l", nil, "language filter (any of)")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag filter (all of)")
	cmd.Flags().StringVar(&dateRange, "date", "", "all, today, week, month or quarter")
	cmd.Flags().StringVar(&sortBy, "sort", "", "createdAt or updatedAt")
	cmd.Flags().StringVar(&sortOrder, "order", "", "asc or desc")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results")
	return cmd
}

func newSuggestCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Show type-ahead suggestions for a prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := opts.client().Suggest(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), items)
			}

			rows := make([][]string, len(items))
			for i, it := range items {
				count := ""
				if it.Count != nil {
					count = strconv.Itoa(*it.Count)
				}
				rows[i] = []string{string(it.Type), it.Text, count}
			}
			renderTable(cmd.OutOrStdout(), []string{"Type", "Suggestion", "Snippets"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum suggestions per category")
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int

	list := func(cmd *cobra.Command, _ []string) error {
		entries, err := opts.client().History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if opts.jsonOut {
			return printJSON(cmd.OutOrStdout(), entries)
		}

		rows := make([][]string, len(entries))
		for i, e := range entries {
			rows[i] = []string{e.ID, e.Query, strconv.Itoa(e.ResultCount), formatTime(e.CreatedAt)}
		}
		renderTable(cmd.OutOrStdout(), []string{"ID", "Query", "Results", "When"}, rows)
		return nil
	}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or edit recent searches",
		Args:  cobra.NoArgs,
		RunE:  list,
	}
	cmd.PersistentFlags().IntVarP(&limit, "limit", "n", 0, "maximum entries")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List recent searches (default)",
			Args:  cobra.NoArgs,
			RunE:  list,
		},
		&cobra.Command{
			Use:   "rm <id>",
			Short: "Forget one search (its popularity count stays)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := opts.client().DeleteHistory(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget all searches (popularity counts stay)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := opts.client().DeleteHistory(cmd.Context(), ""); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
				return nil
			},
		},
	)
	return cmd
}

func newPopularCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "popular",
		Short: "Show the most searched queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := opts.client().Popular(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), stats)
			}

			rows := make([][]string, len(stats))
			for i, s := range stats {
				rows[i] = []string{s.Query, strconv.Itoa(s.SearchCount), formatTime(s.LastSearchedAt)}
			}
			renderTable(cmd.OutOrStdout(), []string{"Query", "Searches", "Last searched"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum queries")
	return cmd
}

func newAddCmd(opts *options) *cobra.Command {
	var (
		in   service.SnippetInput
		file string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a snippet; code comes from --file or stdin",
		Example: `  snippetctl add --title "Go maps" --language go --tag basic --file maps.go
  pbpaste | snippetctl add --title "Quick fix" --language bash`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				code []byte
				err  error
			)
			if file != "" {
				code, err = os.ReadFile(file)
			} else {
				code, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("reading code: %w", err)
			}
			in.Code = string(code)

			created, err := opts.client().Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), created)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", created.ID, created.Title)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Title, "title", "", "snippet title (required)")
	cmd.Flags().StringVar(&in.Language, "language", "", "programming language (required)")
	cmd.Flags().StringVar(&in.Description, "description", "", "short description")
	cmd.Flags().StringSliceVarP(&in.Tags, "tag", "t", nil, "tags (repeatable or comma-separated)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read code from this file instead of stdin")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("language")
	return cmd
}

func newLoginCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Read the owner password from stdin and print a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			token, err := opts.client().Login(cmd.Context(), password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash for OWNER_PASSWORD_HASH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password must not be empty")
			}
			hash, err := auth.NewPasswordService().Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func tagNames(tags []model.Tag) string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}

func setCSV(params url.Values, key string, values []string) {
	if len(values) > 0 {
		params.Set(key, strings.Join(values, ","))
	}
}

func setIf(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
