package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known identities in the gallery",
	Run: func(cmd *cobra.Command, args []string) {
		entries := Gallery.Entries()
		if len(entries) == 0 {
			fmt.Printf("No identities found in %s.\n", Gallery.Location())
			return
		}
		printEntries(os.Stdout, entries)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func printEntries(out io.Writer, entries []types.GalleryEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tNAME")
	fmt.Fprintln(w, "-\t----")
	for i, e := range entries {
		fmt.Fprintf(w, "%d\t%s\n", i+1, e.Name)
	}
	w.Flush()
}
