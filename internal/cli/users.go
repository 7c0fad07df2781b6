package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/snippethub/internal/model"
)

func newUsersCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Look up users and their statistics",
	}
	cmd.AddCommand(newUsersListCommand(opts), newUsersGetCommand(opts))
	return cmd
}

func newUsersListCommand(opts *RootOptions) *cobra.Command {
	var (
		f     model.UserFilters
		pages int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Search != "" && len(f.SearchBy) == 0 {
				f.SearchBy = []string{"username"}
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			p, err := loadPages(cmd.Context(), a.Users.List(f), pages)
			if err != nil {
				return err
			}
			items := p.Items()
			return opts.printer(cmd).print(items, func(w io.Writer) {
				table(w, "ID\tUSERNAME\tROLE", func(tw io.Writer) {
					for _, u := range items {
						fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Username, u.Role)
					}
				})
			})
		},
	}
	cmd.Flags().StringVarP(&f.Search, "search", "s", "", "search text")
	cmd.Flags().StringSliceVar(&f.SearchBy, "search-by", nil, "fields the search applies to (default username)")
	cmd.Flags().StringSliceVar(&f.SortBy, "sort", nil, "sort fields, e.g. username:ASC")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	return cmd
}

type userProfile struct {
	User      model.User          `json:"user"`
	Statistic model.UserStatistic `json:"statistic"`
}

func printProfile(w io.Writer, p userProfile) {
	s := p.Statistic
	fmt.Fprintf(w, "#%d %s (%s)\n\n", p.User.ID, p.User.Username, p.User.Role)
	table(w, "STAT\tVALUE", func(tw io.Writer) {
		fmt.Fprintf(tw, "rating\t%.1f\n", s.Rating)
		fmt.Fprintf(tw, "snippets\t%d\n", s.SnippetsCount)
		fmt.Fprintf(tw, "likes\t%d\n", s.LikesCount)
		fmt.Fprintf(tw, "dislikes\t%d\n", s.DislikesCount)
		fmt.Fprintf(tw, "comments\t%d\n", s.CommentsCount)
		fmt.Fprintf(tw, "questions\t%d\n", s.QuestionsCount)
		fmt.Fprintf(tw, "answers\t%d (%d correct)\n", s.AnswersCount, s.CorrectAnswersCount)
	})
}

func newUsersGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a user with their statistic",
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

			var p userProfile
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() (err error) {
				p.User, err = a.Users.Get(ctx, id)
				return err
			})
			g.Go(func() (err error) {
				p.Statistic, err = a.Users.Statistic(ctx, id)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}
			return opts.printer(cmd).print(p, func(w io.Writer) { printProfile(w, p) })
		},
	}
}

func newMeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in user with their statistic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			me, err := a.Users.Me(cmd.Context())
			if err != nil {
				return err
			}
			stat, err := a.Users.Statistic(cmd.Context(), me.ID)
			if err != nil {
				return err
			}
			p := userProfile{User: me, Statistic: stat}
			return opts.printer(cmd).print(p, func(w io.Writer) { printProfile(w, p) })
		},
	}
}
