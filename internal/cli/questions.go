package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sakif/snippethub/internal/model"
)

func newQuestionsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "questions",
		Aliases: []string{"question", "q"},
		Short:   "Ask, answer and resolve questions",
	}
	cmd.AddCommand(
		newQuestionsListCommand(opts),
		newQuestionsGetCommand(opts),
		newQuestionsAskCommand(opts),
		newQuestionsEditCommand(opts),
		newQuestionsDeleteCommand(opts),
		newQuestionsAnswerCommand(opts),
		newQuestionsAcceptCommand(opts),
	)
	return cmd
}

func newQuestionsListCommand(opts *RootOptions) *cobra.Command {
	var (
		f     model.QuestionFilters
		pages int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			p, err := loadPages(cmd.Context(), a.Questions.List(f), pages)
			if err != nil {
				return err
			}
			items := p.Items()
			return opts.printer(cmd).print(items, func(w io.Writer) {
				table(w, "ID\tTITLE\tAUTHOR\tANSWERS\tRESOLVED", func(tw io.Writer) {
					for _, q := range items {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\n", q.ID, q.Title, q.Author.Username, q.AnswersCount, q.Resolved)
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages to load")
	return cmd
}

func printQuestion(w io.Writer, q model.Question) {
	status := "open"
	if q.Resolved {
		status = "resolved"
	}
	fmt.Fprintf(w, "#%d  %s  by %s  [%s]\n", q.ID, q.Title, q.Author.Username, status)
	if q.Body != "" {
		fmt.Fprintf(w, "\n%s\n", q.Body)
	}
	if q.Code != "" {
		fmt.Fprintf(w, "\n%s\n", q.Code)
	}
	for _, ans := range q.Answers {
		mark := " "
		if ans.IsCorrect {
			mark = "*"
		}
		fmt.Fprintf(w, "\n%s #%d %s: %s", mark, ans.ID, ans.Author.Username, ans.Content)
	}
	if len(q.Answers) > 0 {
		fmt.Fprintln(w)
	}
}

func newQuestionsGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a question with its answers",
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
			q, err := a.Questions.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(q, func(w io.Writer) { printQuestion(w, q) })
		},
	}
}

func bindQuestionInput(cmd *cobra.Command, in *model.QuestionInput) {
	cmd.Flags().StringVarP(&in.Title, "title", "t", "", "question title")
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "question description")
	cmd.Flags().StringVar(&in.AttachedCode, "code", "", "attached code")
}

func newQuestionsAskCommand(opts *RootOptions) *cobra.Command {
	var in model.QuestionInput
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Ask a question",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			q, err := a.Questions.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(q, func(w io.Writer) { fmt.Fprintf(w, "asked question #%d\n", q.ID) })
		},
	}
	bindQuestionInput(cmd, &in)
	return cmd
}

func newQuestionsEditCommand(opts *RootOptions) *cobra.Command {
	var in model.QuestionInput
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Edit your question",
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
			if err := a.Questions.Update(cmd.Context(), id, in); err != nil {
				return err
			}
			return opts.printer(cmd).print(map[string]int64{"updated": id}, func(w io.Writer) {
				fmt.Fprintf(w, "updated question #%d\n", id)
			})
		},
	}
	bindQuestionInput(cmd, &in)
	return cmd
}

func newQuestionsDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete your question",
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
			if err := a.Questions.Delete(cmd.Context(), id); err != nil {
				return err
			}
			return opts.printer(cmd).print(map[string]int64{"deleted": id}, func(w io.Writer) {
				fmt.Fprintf(w, "deleted question #%d\n", id)
			})
		},
	}
}

func newQuestionsAnswerCommand(opts *RootOptions) *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "answer QUESTION_ID",
		Short: "Answer a question",
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
			ans, err := a.Questions.Answer(cmd.Context(), model.AnswerInput{Content: content, QuestionID: id})
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(ans, func(w io.Writer) { fmt.Fprintf(w, "posted answer #%d\n", ans.ID) })
		},
	}
	cmd.Flags().StringVarP(&content, "content", "c", "", "answer text")
	return cmd
}

func newQuestionsAcceptCommand(opts *RootOptions) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "accept QUESTION_ID ANSWER_ID",
		Short: "Mark an answer to your question as correct",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qid, err := parseID(args[0])
			if err != nil {
				return err
			}
			aid, err := parseID(args[1])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Questions.MarkAnswer(cmd.Context(), qid, aid, !undo); err != nil {
				return err
			}
			q, err := a.Questions.Get(cmd.Context(), qid)
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(q, func(w io.Writer) { printQuestion(w, q) })
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "unmark the answer instead")
	return cmd
}
