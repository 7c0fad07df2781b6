package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/snippethub/internal/model"
	"github.com/sakif/snippethub/internal/querycache"
)

func newSnippetsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snippets",
		Aliases: []string{"snippet"},
		Short:   "Browse, post and rate code snippets",
	}
	cmd.AddCommand(
		newSnippetsListCommand(opts),
		newSnippetsGetCommand(opts),
		newSnippetsCreateCommand(opts),
		newSnippetsUpdateCommand(opts),
		newSnippetsDeleteCommand(opts),
		newSnippetsMarkCommand(opts, model.MarkLike),
		newSnippetsMarkCommand(opts, model.MarkDislike),
		newSnippetsLanguagesCommand(opts),
	)
	return cmd
}

// loadPages fetches the first page and then up to pages-1 more.
func loadPages[T any](ctx context.Context, list *querycache.Infinite[T], pages int) (querycache.Pages[T], error) {
	p, err := list.Fetch(ctx)
	if err != nil {
		return p, err
	}
	for i := 1; i < pages && p.HasMore(); i++ {
		if p, err = list.FetchNextPage(ctx); err != nil {
			return p, err
		}
	}
	return p, nil
}

func newSnippetsListCommand(opts *RootOptions) *cobra.Command {
	var (
		f     model.SnippetFilters
		pages int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snippets, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			p, err := loadPages(cmd.Context(), a.Snippets.List(f), pages)
			if err != nil {
				return err
			}
			items := p.Items()
			return opts.printer(cmd).print(items, func(w io.Writer) {
				table(w, "ID\tLANGUAGE\tAUTHOR\tLIKES\tDISLIKES", func(tw io.Writer) {
					for _, s := range items {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", s.ID, s.Language, s.Author.Username, s.Likes, s.Dislikes)
					}
				})
				if p.HasMore() {
					fmt.Fprintln(w, "(more available: --pages)")
				}
			})
		},
	}
	cmd.Flags().Int64Var(&f.UserID, "user", 0, "only snippets of this user id")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "page size")
	cmd.Flags().StringSliceVar(&f.SortBy, "sort", nil, "sort fields, e.g. id:DESC")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	return cmd
}

func printSnippet(w io.Writer, s model.Snippet) {
	fmt.Fprintf(w, "#%d  %s  by %s  +%d/-%d\n\n", s.ID, s.Language, s.Author.Username, s.Likes, s.Dislikes)
	fmt.Fprintln(w, s.Code)
	if len(s.Comments) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%d comments\n", s.CommentsCount)
	for _, c := range s.Comments {
		fmt.Fprintf(w, "  %s: %s\n", c.Author.Username, c.Content)
	}
}

func newSnippetsGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one snippet with its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			s, err := a.Snippets.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(s, func(w io.Writer) { printSnippet(w, s) })
		},
	}
}

// snippetInput reads --language and --code or --file.
type snippetInput struct {
	language string
	code     string
	file     string
}

func (in *snippetInput) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&in.language, "language", "l", "", "snippet language")
	cmd.Flags().StringVar(&in.code, "code", "", "snippet code")
	cmd.Flags().StringVarP(&in.file, "file", "f", "", "read the code from this file")
	cmd.MarkFlagsMutuallyExclusive("code", "file")
}

func (in *snippetInput) resolve() (model.SnippetInput, error) {
	code := in.code
	if in.file != "" {
		raw, err := os.ReadFile(in.file)
		if err != nil {
			return model.SnippetInput{}, WrapExitError(ExitUsage, "reading code file", err)
		}
		code = strings.TrimRight(string(raw), "\n")
	}
	return model.SnippetInput{Language: in.language, Code: code}, nil
}

func newSnippetsCreateCommand(opts *RootOptions) *cobra.Command {
	var in snippetInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a snippet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := in.resolve()
			if err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			s, err := a.Snippets.Create(cmd.Context(), input)
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(s, func(w io.Writer) { fmt.Fprintf(w, "created snippet #%d\n", s.ID) })
		},
	}
	in.bind(cmd)
	return cmd
}

func newSnippetsUpdateCommand(opts *RootOptions) *cobra.Command {
	var in snippetInput
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Replace the language and code of your snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			input, err := in.resolve()
			if err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Snippets.Update(cmd.Context(), id, input); err != nil {
				return err
			}
			return opts.printer(cmd).print(map[string]int64{"updated": id}, func(w io.Writer) {
				fmt.Fprintf(w, "updated snippet #%d\n", id)
			})
		},
	}
	in.bind(cmd)
	return cmd
}

func newSnippetsDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete your snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Snippets.Delete(cmd.Context(), id); err != nil {
				return err
			}
			return opts.printer(cmd).print(map[string]int64{"deleted": id}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted snippet #%d\n", id)
			})
		},
	}
}

func newSnippetsMarkCommand(opts *RootOptions, kind model.MarkKind) *cobra.Command {
	return &cobra.Command{
		Use:   string(kind) + " ID",
		Short: fmt.Sprintf("Mark a snippet with a %s", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			// A fresh process has nothing cached, so the author comes from
			// the snippet itself.
			s, err := a.Snippets.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := a.Snippets.Mark(cmd.Context(), id, s.Author.ID, kind); err != nil {
				return err
			}
			if s, err = a.Snippets.Get(cmd.Context(), id); err != nil {
				return err
			}
			return opts.printer(cmd).print(s, func(w io.Writer) {
				fmt.Fprintf(w, "snippet #%d  +%d/-%d\n", s.ID, s.Likes, s.Dislikes)
			})
		},
	}
}

func newSnippetsLanguagesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the languages a snippet can be posted in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			langs, err := a.Snippets.Languages(cmd.Context())
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(langs, func(w io.Writer) { fmt.Fprintln(w, strings.Join(langs, "\n")) })
		},
	}
}
