package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rubentxu/code-context-graph/internal/pipeline"
)

var (
	indexAuthor  string
	indexMessage string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Scan the source tree and apply the resulting change plan to the graph store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		cas, vers, graphStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = graphStore.Close() }()
		defer func() { _ = vers.Close() }()
		defer func() { _ = cas.Close() }()

		p := pipeline.New(sourcePath, cfg, cas, vers, graphStore)
		defer p.Close()

		author := indexAuthor
		if author == "" {
			if u, err := os.Hostname(); err == nil {
				author = u
			} else {
				author = "ccg"
			}
		}
		message := indexMessage
		if message == "" {
			message = fmt.Sprintf("index run at %s", time.Now().UTC().Format(time.RFC3339))
		}

		events, err := p.Run(context.Background(), author, message)
		if err != nil {
			return fmt.Errorf("start index run: %w", err)
		}

		var (
			parsed, failed, skipped int
			runErr                  error
		)
		for ev := range events {
			switch ev.Kind {
			case pipeline.EventParsed:
				parsed++
			case pipeline.EventParseFailed:
				failed++
				if ev.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "parse failed: %s: %v\n", ev.Path, ev.Err)
				}
			case pipeline.EventSkippedOversize:
				skipped++
			case pipeline.EventSkippedInvalidPath:
				skipped++
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped invalid path: %s: %v\n", ev.Path, ev.Err)
			case pipeline.EventPlanPrepared:
				if ev.Plan != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "plan prepared: %d operations\n", len(ev.Plan.Ops))
				}
			case pipeline.EventVersionApplied:
				fmt.Fprintln(cmd.OutOrStdout(), "version applied")
			case pipeline.EventVersionPartiallyApplied:
				runErr = fmt.Errorf("version partially applied: %v", ev.Err)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "files parsed: %d, failed: %d, skipped (oversize or invalid path): %d\n", parsed, failed, skipped)
		return runErr
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexAuthor, "author", "", "Author recorded on the new version (default: hostname)")
	indexCmd.Flags().StringVar(&indexMessage, "message", "", "Message recorded on the new version")
	rootCmd.AddCommand(indexCmd)
}
