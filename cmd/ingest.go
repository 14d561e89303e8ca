package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lmia-map/internal/dataset"
	"github.com/sells-group/lmia-map/internal/fetcher"
	"github.com/sells-group/lmia-map/internal/ingest"
	"github.com/sells-group/lmia-map/internal/model"
)

var (
	ingestYear    int
	ingestQuarter string
	ingestOut     string
	ingestSheet   string
	ingestList    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Normalize one LMIA spreadsheet and print the ingest report",
	Long:  "Parses an .xlsx or .csv LMIA file, geo-locates every employer and prints the report. With --out the normalized records are written as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}
		path := args[0]
		if ingestList {
			return printSheets(cmd.OutOrStdout(), path)
		}
		period, err := inferPeriod(path, ingestYear, ingestQuarter)
		if err != nil {
			return err
		}

		gz, err := openGazetteer(cmd.Context(), cfg.Gazetteer)
		if err != nil {
			return err
		}
		defer gz.Close()

		res, err := ingest.NewNormalizer(gz.Resolver, ingest.WithSheet(ingestSheet)).NormalizeFile(cmd.Context(), path, period)
		if err != nil {
			return err
		}

		if ingestOut != "" {
			if err := writeRecords(ingestOut, cmd.OutOrStdout(), res.Records); err != nil {
				return err
			}
			zap.L().Info("records written", zap.String("out", ingestOut), zap.Int("count", len(res.Records)))
		}

		enc := json.NewEncoder(cmd.ErrOrStderr())
		enc.SetIndent("", "  ")
		return enc.Encode(res.Report)
	},
}

// printSheets lists the worksheets of an XLSX workbook, one per line.
func printSheets(w io.Writer, path string) error {
	names, err := fetcher.SheetNames(path)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(w, n) //nolint:errcheck
	}
	return nil
}

// inferPeriod fills the year from a numeric parent directory and the
// quarter from the file name when the flags leave them unset.
func inferPeriod(path string, year int, quarter string) (model.Period, error) {
	if year == 0 {
		y, err := strconv.Atoi(filepath.Base(filepath.Dir(path)))
		if err != nil {
			return model.Period{}, eris.Errorf("ingest: cannot infer year from %s, pass --year", path)
		}
		year = y
	}
	if quarter == "" {
		quarter = dataset.QuarterFromFilename(path)
	}
	quarter = strings.ToUpper(quarter)
	if !model.ValidQuarter(quarter) {
		return model.Period{}, eris.Errorf("ingest: invalid quarter %q", quarter)
	}
	return model.Period{Year: year, Quarter: quarter}, nil
}

// writeRecords writes records as a JSON array to path, or to stdout for "-".
func writeRecords(path string, stdout io.Writer, records []model.EmployerRecord) error {
	w := stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "ingest: create %s", path)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}
	if records == nil {
		records = []model.EmployerRecord{}
	}
	if err := json.NewEncoder(w).Encode(records); err != nil {
		return eris.Wrap(err, "ingest: write records")
	}
	return nil
}

func init() {
	ingestCmd.Flags().IntVar(&ingestYear, "year", 0, "dataset year (default from parent directory)")
	ingestCmd.Flags().StringVar(&ingestQuarter, "quarter", "", "quarter label such as Q1 or Q1-Q4 (default from file name)")
	ingestCmd.Flags().StringVar(&ingestOut, "out", "", "write normalized records as JSON to this path (- for stdout)")
	ingestCmd.Flags().StringVar(&ingestSheet, "sheet", "", "XLSX worksheet to read (default first sheet)")
	ingestCmd.Flags().BoolVar(&ingestList, "list-sheets", false, "print the workbook's worksheet names and exit")
	rootCmd.AddCommand(ingestCmd)
}
