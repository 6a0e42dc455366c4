package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/gridwatch/internal/findings"
)

// NewCommentCmd creates the comment command.
func NewCommentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment <finding-id> [text...]",
		Short: "Comment on a finding or list its comments",
		Long: `Comment attaches a note to a finding, for example who was asked to fill the
cell. A commented finding is never purged, even after it was resolved.

Without text, the comments of the finding are listed.

Examples:
  # Add a comment
  gridwatch comment 3f2a9c1e-... "Asked the ward office to add the phone number"

  # List the comments of a finding
  gridwatch comment 3f2a9c1e-...`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCommentCmd,
	}

	cmd.Flags().String("author", defaultAuthor(), "Author of the comment")

	return cmd
}

// defaultAuthor is the login name, or "cli" when it is unknown.
func defaultAuthor() string {
	for _, key := range []string{"USER", "USERNAME"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return "cli"
}

// runCommentCmd executes the comment command.
func runCommentCmd(cmd *cobra.Command, args []string) error {
	author, err := cmd.Flags().GetString("author")
	if err != nil {
		return err
	}

	a, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.only()
	if err != nil {
		return err
	}

	findingID := args[0]
	if _, err := t.store.Get(findingID); err != nil {
		if errors.Is(err, findings.ErrNotFound) {
			return fmt.Errorf("%w: %s (it may have been purged)", err, findingID)
		}
		return err
	}

	body := strings.Join(args[1:], " ")
	if body == "" {
		comments := t.store.Comments(findingID)
		if len(comments) == 0 {
			fmt.Fprintf(a.out, "No comments on %s\n", findingID)
			return nil
		}
		for _, c := range comments {
			fmt.Fprintf(a.out, "%s  %s: %s\n", c.CreatedAt.Local().Format(time.DateTime), c.Author, c.Body)
		}
		return nil
	}

	c, err := t.store.AttachComment(context.Background(), findingID, author, body)
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}
	fmt.Fprintf(a.out, "Added comment %s to %s\n", c.ID, findingID)
	return nil
}
