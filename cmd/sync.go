package main

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lmia-map/internal/config"
	"github.com/sells-group/lmia-map/internal/fetcher"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download the configured LMIA files into the data directory",
	Long:  "Fetches every sync.files entry into <data_dir>/<year>/. Files whose ETag has not changed since the last run are skipped unless --force is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sync"); err != nil {
			return err
		}
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:   cfg.Sync.UserAgent,
			RatePerHost: rate.Limit(cfg.Sync.RatePerSecond),
		})
		res, err := syncFiles(cmd.Context(), f, cfg.Sync, cfg.Dataset.DataDir, syncForce)
		zap.L().Info("sync complete",
			zap.Int("downloaded", res.Downloaded),
			zap.Int("unchanged", res.Unchanged),
			zap.Int("failed", res.Failed),
		)
		return err
	},
}

type syncResult struct {
	Downloaded int
	Unchanged  int
	Failed     int
}

// syncFiles downloads each configured file. A failed file is logged and
// the rest still run; the first error is returned. With force, stored ETags
// are ignored and every file is fetched again.
func syncFiles(ctx context.Context, d fetcher.Downloader, sc config.SyncConfig, dataDir string, force bool) (syncResult, error) {
	var (
		res      syncResult
		firstErr error
	)
	for _, sf := range sc.Files {
		changed, err := syncFile(ctx, d, sc.BaseURL, dataDir, sf, force)
		switch {
		case err != nil:
			res.Failed++
			zap.L().Error("sync file failed", zap.String("url", sf.URL), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		case changed:
			res.Downloaded++
		default:
			res.Unchanged++
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}
	return res, firstErr
}

func syncFile(ctx context.Context, d fetcher.Downloader, baseURL, dataDir string, sf config.SyncFile, force bool) (bool, error) {
	src, err := resolveURL(baseURL, sf.URL)
	if err != nil {
		return false, err
	}
	name := sf.Name
	if name == "" {
		name = path.Base(src.Path)
	}
	if name == "" || name == "/" || name == "." {
		return false, eris.Errorf("sync: cannot derive a file name from %s", src)
	}
	dest := filepath.Join(dataDir, strconv.Itoa(sf.Year), name)
	etagPath := dest + ".etag"

	etag := ""
	if _, err := os.Stat(dest); err == nil && !force {
		if b, err := os.ReadFile(etagPath); err == nil {
			etag = strings.TrimSpace(string(b))
		}
	}

	body, newETag, changed, err := d.DownloadIfChanged(ctx, src.String(), etag)
	if err != nil {
		return false, err
	}
	if !changed {
		zap.L().Debug("sync file unchanged", zap.String("dest", dest))
		return false, nil
	}
	defer body.Close() //nolint:errcheck

	n, err := fetcher.WriteFileAtomic(dest, body)
	if err != nil {
		return false, err
	}
	if newETag != "" {
		if err := os.WriteFile(etagPath, []byte(newETag), 0o644); err != nil {
			return true, eris.Wrapf(err, "sync: write %s", etagPath)
		}
	} else {
		_ = os.Remove(etagPath)
	}
	zap.L().Info("sync file downloaded", zap.String("dest", dest), zap.Int64("bytes", n))
	return true, nil
}

// resolveURL resolves ref against base. Absolute refs are used as-is.
func resolveURL(base, ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, eris.Wrapf(err, "sync: parse url %q", ref)
	}
	if u.IsAbs() {
		return u, nil
	}
	if base == "" {
		return nil, eris.Errorf("sync: relative url %q needs sync.base_url", ref)
	}
	b, err := url.Parse(base)
	if err != nil {
		return nil, eris.Wrapf(err, "sync: parse base url %q", base)
	}
	return b.ResolveReference(u), nil
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "ignore stored ETags and download every file")
	rootCmd.AddCommand(syncCmd)
}
