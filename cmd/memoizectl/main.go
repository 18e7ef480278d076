// Command memoizectl inspects the on-disk layout of the file backend from
// outside the owning process (spec §4.12, component C12): list the function
// directories and entries under a root, or clear one.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cachegrove/memoize/internal/backend/file"
)

var (
	root        string
	layoutFlag  string
	functionDir string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "memoizectl",
		Short: "Inspect and manage the memoize file backend's on-disk cache",
	}
	rootCmd.PersistentFlags().StringVar(&root, "root", file.DefaultRoot(), "cache root directory")
	rootCmd.PersistentFlags().StringVar(&layoutFlag, "layout", "per-entry", "storage layout: per-entry or single-file")

	rootCmd.AddCommand(lsCmd(), clearCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveLayout() file.Layout {
	if layoutFlag == "single-file" {
		return file.LayoutSingleFile
	}
	return file.LayoutPerEntry
}

func lsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List function directories, or entries within one",
		RunE: func(cmd *cobra.Command, args []string) error {
			if functionDir == "" {
				return listFunctions()
			}
			return listEntries()
		},
	}
	cmd.Flags().StringVar(&functionDir, "function", "", "encoded function directory name (from 'ls' with no flag)")
	return cmd
}

func clearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove a function's entire cache directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if functionDir == "" {
				return fmt.Errorf("memoizectl: --function is required")
			}
			dirs, err := file.ListFunctionDirs(root)
			if err != nil {
				return err
			}
			for _, d := range dirs {
				if d.EncodedID == functionDir {
					return file.RemoveFunctionDir(d.Path)
				}
			}
			return fmt.Errorf("memoizectl: no function directory %q under %s", functionDir, root)
		},
	}
	cmd.Flags().StringVar(&functionDir, "function", "", "encoded function directory name to remove")
	return cmd
}

func listFunctions() error {
	dirs, err := file.ListFunctionDirs(root)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FUNCTION\tPATH")
	for _, d := range dirs {
		fmt.Fprintf(w, "%s\t%s\n", d.EncodedID, d.Path)
	}
	return w.Flush()
}

func listEntries() error {
	dirs, err := file.ListFunctionDirs(root)
	if err != nil {
		return err
	}
	var dir string
	for _, d := range dirs {
		if d.EncodedID == functionDir {
			dir = d.Path
			break
		}
	}
	if dir == "" {
		return fmt.Errorf("memoizectl: no function directory %q under %s", functionDir, root)
	}

	entries, err := file.ListEntries(dir, resolveLayout())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tHAS_VALUE\tIN_FLIGHT\tSTALE\tTIMESTAMP")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%v\t%v\t%v\t%s\n",
			e.EncodedKey, e.Entry.HasValue, e.Entry.InFlight, e.Entry.Stale,
			e.Entry.Timestamp.Format(time.RFC3339))
	}
	return w.Flush()
}
