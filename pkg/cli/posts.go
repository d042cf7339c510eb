package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
)

func newPostsCommand() *Command {
	fs := flag.NewFlagSet("posts", flag.ExitOnError)
	sector := fs.String("sector", "", "Filter posts by sector")

	cmd := &Command{
		Name:        "posts",
		Description: "List funding posts on the marketplace",
		Flags:       fs,
	}
	cmd.Run = func(args []string) error {
		if err := fs.Parse(args); err != nil {
			return err
		}
		ctx := context.Background()

		env, err := newEnvironment(ctx, false)
		if err != nil {
			return err
		}
		if err := env.start(ctx); err != nil {
			return err
		}
		defer env.service.Stop()

		posts, err := env.client.Posts().List(ctx, *sector)
		if err != nil {
			return err
		}
		if len(posts) == 0 {
			fmt.Println("No posts found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSECTOR\tGOAL\tTYPE")
		for _, post := range posts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\t%s\n",
				post.ID, post.Title, post.Sector, post.FundingGoal, post.InvestmentType)
		}
		return w.Flush()
	}
	return cmd
}
