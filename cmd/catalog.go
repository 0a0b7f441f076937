package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pitrctl/internal/catalog"
	"pitrctl/internal/logger"
)

var catalogKind string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect discovered backups",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups on disk and in remote storage",
	Args:  cobra.NoArgs,
	RunE:  runCatalogList,
}

func init() {
	catalogListCmd.Flags().StringVar(&catalogKind, "kind", "all",
		"filter by backup kind: full, incremental, or all")
	catalogCmd.AddCommand(catalogListCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var filter catalog.Kind
	switch catalogKind {
	case "full":
		filter = catalog.KindFull
	case "incremental":
		filter = catalog.KindIncremental
	case "all":
	default:
		return fmt.Errorf("invalid --kind %q, expected full, incremental, or all", catalogKind)
	}

	store, err := remoteStore(ctx)
	if err != nil {
		return err
	}

	entries, err := catalog.New(cfg.BackupBaseDir, store, log).List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tSTAMP\tLOCATION")
	shown := 0
	for _, e := range entries {
		if filter != "" && e.Kind != filter {
			continue
		}
		location := e.Dir
		if !e.Local {
			location = "s3://" + cfg.S3.Bucket + "/" + e.Key
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Kind, e.Stamp, location)
		shown++
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if shown == 0 {
		logger.WarnColor.Println("no backups found")
	}
	return nil
}
