// Package fetcher downloads LMIA publication files and reads their rows from
// XLSX and CSV.
package fetcher

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Downloader fetches remote publication files.
type Downloader interface {
	// DownloadIfChanged fetches the URL only when its ETag differs from etag.
	// Returns (body, newETag, changed, error).
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}

// ReadTable reads every row of a spreadsheet, choosing the parser by file
// extension. A non-empty sheet selects an XLSX worksheet by name.
func ReadTable(ctx context.Context, path, sheet string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path, XLSXOptions{SheetName: sheet})
	case ".csv":
		if sheet != "" {
			return nil, eris.Errorf("fetcher: sheet %q given for csv file %s", sheet, path)
		}
		return ReadCSVFile(ctx, path, CSVOptions{LazyQuotes: true, TrimSpace: true})
	default:
		return nil, eris.Errorf("fetcher: unsupported file type %q", filepath.Ext(path))
	}
}
