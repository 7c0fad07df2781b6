package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/snippethub/internal/live"
	"github.com/sakif/snippethub/internal/model"
	"github.com/sakif/snippethub/internal/service"
)

func newCommentsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments",
		Short: "Follow and post live snippet comments",
	}
	cmd.AddCommand(newCommentsWatchCommand(opts), newCommentsPostCommand(opts))
	return cmd
}

// snapshots keeps only the latest comment list a thread reported.
type snapshots struct {
	mu     sync.Mutex
	latest []model.Comment
	notify chan struct{}
}

func newSnapshots() *snapshots {
	return &snapshots{notify: make(chan struct{}, 1)}
}

func (s *snapshots) push(list []model.Comment) {
	s.mu.Lock()
	s.latest = list
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *snapshots) get() []model.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func openThread(cmd *cobra.Command, opts *RootOptions, arg string) (*service.Thread, *snapshots, error) {
	id, err := parseID(arg)
	if err != nil {
		return nil, nil, err
	}
	a, err := opts.open(cmd)
	if err != nil {
		return nil, nil, err
	}
	if a.Comments == nil {
		return nil, nil, NewExitError(ExitUsage, "live comments are disabled (SNIPPETHUB_WS_ENABLED=false)")
	}
	snaps := newSnapshots()
	th, err := a.Comments.Open(cmd.Context(), id, snaps.push)
	if err != nil {
		return nil, nil, err
	}
	return th, snaps, nil
}

func newCommentsWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID",
		Short: "Print a snippet's comments and follow new ones until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			th, snaps, err := openThread(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer th.Close()

			w := cmd.OutOrStdout()
			prev := th.Comments()
			for _, c := range prev {
				fmt.Fprintln(w, formatComment(c))
			}

			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-snaps.notify:
					next := snaps.get()
					for _, line := range diffComments(prev, next) {
						fmt.Fprintln(w, line)
					}
					prev = next
				}
			}
		},
	}
}

func newCommentsPostCommand(opts *RootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "post ID BODY",
		Short: "Post a comment and wait for the server to confirm it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			th, snaps, err := openThread(cmd, opts, args[0])
			if err != nil {
				return err
			}
			defer th.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := waitJoined(ctx, th); err != nil {
				return err
			}
			pending, err := th.Post(ctx, args[1])
			if err != nil {
				return err
			}
			c, err := waitConfirmed(ctx, snaps, pending.TempID)
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(c, func(w io.Writer) {
				fmt.Fprintf(w, "posted comment #%d\n", c.ID)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the server")
	return cmd
}

func waitJoined(ctx context.Context, th *service.Thread) error {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for th.State() != live.StateJoined {
		select {
		case <-ctx.Done():
			return WrapExitError(ExitFailure, "could not join the comment room", ctx.Err())
		case <-tick.C:
		}
	}
	return nil
}

// waitConfirmed returns the comment once the server's copy replaced the
// pending one, or fails if the pending comment disappears.
func waitConfirmed(ctx context.Context, snaps *snapshots, tempID string) (model.Comment, error) {
	for {
		seen := false
		for _, c := range snaps.get() {
			if c.TempID != tempID {
				continue
			}
			if !c.Pending {
				return c, nil
			}
			seen = true
		}
		if !seen && snaps.get() != nil {
			return model.Comment{}, NewExitError(ExitFailure, "the comment was not accepted")
		}
		select {
		case <-ctx.Done():
			return model.Comment{}, WrapExitError(ExitFailure, "no confirmation from the server", ctx.Err())
		case <-snaps.notify:
		}
	}
}

func formatComment(c model.Comment) string {
	if c.Pending {
		return fmt.Sprintf("[sending] %s: %s", c.Author.Username, c.Body)
	}
	return fmt.Sprintf("[#%d] %s: %s", c.ID, c.Author.Username, c.Body)
}

// diffComments describes how next differs from prev, one line per change.
// A pending comment is matched by temp id, so its confirmation reads as a
// change of the same comment rather than a new one.
func diffComments(prev, next []model.Comment) []string {
	byID := make(map[int64]int, len(prev))
	byTemp := make(map[string]int)
	for i, c := range prev {
		if c.Pending {
			byTemp[c.TempID] = i
		} else {
			byID[c.ID] = i
		}
	}

	var out []string
	matched := make([]bool, len(prev))
	for _, c := range next {
		i, ok := -1, false
		if c.Pending {
			i, ok = byTemp[c.TempID]
		} else if i, ok = byID[c.ID]; !ok && c.TempID != "" {
			i, ok = byTemp[c.TempID]
		}
		if !ok {
			out = append(out, "+ "+formatComment(c))
			continue
		}
		matched[i] = true
		switch old := prev[i]; {
		case old.Pending && !c.Pending:
			out = append(out, "✓ "+formatComment(c))
		case old.Body != c.Body:
			out = append(out, "~ "+formatComment(c))
		}
	}
	for i, c := range prev {
		if !matched[i] {
			out = append(out, "- "+formatComment(c))
		}
	}
	return out
}
