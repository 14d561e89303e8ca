package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lmia-map/internal/gazetteer"
)

var gazetteerReplace bool

var gazetteerCmd = &cobra.Command{
	Use:   "gazetteer",
	Short: "Manage the place-name gazetteer used to geo-locate employers",
}

var gazetteerImportCmd = &cobra.Command{
	Use:   "import <geonames-file>",
	Short: "Load Canadian populated places from a GeoNames dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("gazetteer"); err != nil {
			return err
		}
		ctx := cmd.Context()
		gz, err := openGazetteer(ctx, cfg.Gazetteer)
		if err != nil {
			return err
		}
		defer gz.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "gazetteer: open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		start := time.Now()
		stats, err := importPlaces(ctx, gz, f, gazetteerReplace)
		if err != nil {
			return err
		}
		zap.L().Info("gazetteer import complete",
			zap.String("driver", cfg.Gazetteer.Driver),
			zap.Int("rows", stats.Rows),
			zap.Int("places", stats.Places),
			zap.Int("inserted", stats.Inserted),
			zap.Int("skipped", stats.Skipped),
			zap.Duration("elapsed", time.Since(start)),
		)
		return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
	},
}

// importPlaces loads a dump into whichever store the gazetteer opened.
func importPlaces(ctx context.Context, gz *gazetteerEnv, r io.Reader, replace bool) (*gazetteer.ImportStats, error) {
	switch {
	case gz.Postgres != nil && replace:
		return gz.Postgres.Replace(ctx, r)
	case gz.Postgres != nil:
		return gz.Postgres.Import(ctx, r)
	case gz.SQLite != nil && replace:
		return nil, eris.New("gazetteer: --replace is only supported by the postgres driver")
	case gz.SQLite != nil:
		return gz.SQLite.Import(ctx, r)
	default:
		return nil, eris.New("gazetteer: the static driver cannot import places")
	}
}

var gazetteerLookupCmd = &cobra.Command{
	Use:   "lookup <province> <city>",
	Short: "Resolve a city the way ingest does",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		gz, err := openGazetteer(cmd.Context(), cfg.Gazetteer)
		if err != nil {
			return err
		}
		defer gz.Close()

		m := gz.Resolver.Resolve(cmd.Context(), args[0], args[1])
		fmt.Fprintf(cmd.OutOrStdout(), "%.6f\t%.6f\t%s\t%s\n", m.Lat, m.Lng, m.Precision, m.Source)
		return nil
	},
}

func init() {
	gazetteerImportCmd.Flags().BoolVar(&gazetteerReplace, "replace", false, "truncate and reload instead of upserting (postgres only)")
	gazetteerCmd.AddCommand(gazetteerImportCmd, gazetteerLookupCmd)
	rootCmd.AddCommand(gazetteerCmd)
}
