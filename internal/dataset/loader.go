package dataset

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/lmia-map/internal/model"
)

// FileParser turns one spreadsheet into employer records for a period.
type FileParser interface {
	ParseFile(ctx context.Context, path string, period model.Period) ([]model.EmployerRecord, error)
}

// FileLoader resolves a period through the catalog and parses the file.
type FileLoader struct {
	catalog *Catalog
	parser  FileParser
}

// NewFileLoader creates a FileLoader.
func NewFileLoader(catalog *Catalog, parser FileParser) *FileLoader {
	return &FileLoader{catalog: catalog, parser: parser}
}

// Load implements Loader.
func (l *FileLoader) Load(ctx context.Context, period model.Period) ([]model.EmployerRecord, error) {
	entry, err := l.catalog.Resolve(period)
	if err != nil {
		return nil, err
	}
	zap.L().Info("dataset: loading file", zap.String("period", period.String()), zap.String("path", entry.Path))
	return l.parser.ParseFile(ctx, entry.Path, period)
}
