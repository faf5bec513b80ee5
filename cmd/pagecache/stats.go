package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Aazib-Ai/UOLink-App-sub002/cache"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the durable tier's contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbFile := dbFilenameFlag
		if dbFile == "" || dbFile == "memory" {
			dbFile = "./pagecache.db"
		}
		store, err := cache.NewSQLiteStore(dbFile, 0)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tPRIORITY\tSIZE\tEXPIRES\tSTALE")
		var count int
		err = store.Keys(ctx, func(key string) {
			e, ok, getErr := store.Get(ctx, key)
			if getErr != nil || !ok {
				return
			}
			count++
			fmt.Fprintf(tw, "%s\t%.1f\t%d\t%s\t%t\n",
				key, e.Priority, e.SizeBytes, e.ExpiresAt.Format("2006-01-02 15:04:05"), e.Stale)
		})
		if err != nil {
			return err
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		size, err := store.SizeBytes(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\n%d entries, %d bytes\n", count, size)
		return nil
	},
}
