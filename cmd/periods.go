package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/lmia-map/internal/dataset"
)

var periodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "List the years and quarters found under the data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := dataset.NewCatalog(cfg.Dataset.DataDir)
		av, err := cat.Available()
		if err != nil {
			return err
		}
		printAvailability(cmd.OutOrStdout(), cat.Dir(), av)
		return nil
	},
}

func printAvailability(w io.Writer, dir string, av *dataset.Availability) {
	if len(av.Years) == 0 {
		fmt.Fprintf(w, "no data files under %s\n", dir)
		return
	}
	for _, y := range av.Years {
		quarters := av.Quarters[strconv.Itoa(y)]
		fmt.Fprintf(w, "%d\t%s\n", y, strings.Join(quarters, ", "))
	}
}

func init() {
	rootCmd.AddCommand(periodsCmd)
}
