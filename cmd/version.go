package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rubentxu/code-context-graph/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Inspect and manage the Merkle version history",
}

var versionListLimit int
var versionListAuthor string

var versionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded versions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cas, vers, graphStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = graphStore.Close() }()
		defer func() { _ = vers.Close() }()
		defer func() { _ = cas.Close() }()

		list, err := vers.List(version.Filter{Author: versionListAuthor, Limit: versionListLimit})
		if err != nil {
			return err
		}
		for _, v := range list {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  ordinal=%d  root=%s  +%d ~%d -%d =%d  %s\n",
				v.ID, v.Ordinal, v.RootHash, v.ChangeSummary.Added, v.ChangeSummary.Modified,
				v.ChangeSummary.Deleted, v.ChangeSummary.Unchanged, v.Message)
		}
		return nil
	},
}

var versionGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Sweep CAS objects unreachable from any retained version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Merkle.GCEnabled {
			fmt.Fprintln(cmd.OutOrStdout(), "merkle.gc_enabled is false; refusing to run (override in config to enable)")
			return nil
		}

		cas, vers, graphStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = graphStore.Close() }()
		defer func() { _ = vers.Close() }()
		defer func() { _ = cas.Close() }()

		swept, err := vers.GC()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "swept %d unreachable object(s)\n", swept)
		return nil
	},
}

func init() {
	versionListCmd.Flags().IntVar(&versionListLimit, "limit", 20, "Maximum number of versions to print (0 = all)")
	versionListCmd.Flags().StringVar(&versionListAuthor, "author", "", "Filter by author")
	versionCmd.AddCommand(versionListCmd)
	versionCmd.AddCommand(versionGCCmd)
	rootCmd.AddCommand(versionCmd)
}
