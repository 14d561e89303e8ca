package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lmia-map/internal/model"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func setupDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "2024", "tfwp_2024q1_pos_en.xlsx"))
	touch(t, filepath.Join(dir, "2024", "tfwp_2024q2_pos_en.xlsx"))
	touch(t, filepath.Join(dir, "2024", "tfwp_2024q3_pos_en.csv"))
	touch(t, filepath.Join(dir, "2024", "notes.txt"))
	touch(t, filepath.Join(dir, "2024", "~$tfwp_2024q1_pos_en.xlsx"))
	touch(t, filepath.Join(dir, "2023", "tfwp_2023_annual.xlsx"))
	touch(t, filepath.Join(dir, "2022", "tfwp_2022q1q2_pos_en.xlsx"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "archive"), 0o755))
	return dir
}

func TestQuarterFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"tfwp_2024q1_pos_en.xlsx", "Q1"},
		{"TFWP_2024Q2_POS_EN.xlsx", "Q2"},
		{"tfwp_2024q3.csv", "Q3"},
		{"tfwp_2024q4.xlsx", "Q4"},
		{"tfwp_2022q1q2_pos_en.xlsx", "Q1-Q2"},
		{"tfwp_2022_q1-q2.xlsx", "Q1-Q2"},
		{"annual.xlsx", "Q1-Q4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuarterFromFilename(tt.name))
		})
	}
}

func TestCatalog_Available(t *testing.T) {
	c := NewCatalog(setupDataDir(t))

	av, err := c.Available()
	require.NoError(t, err)
	assert.Equal(t, []int{2022, 2023, 2024}, av.Years)
	assert.Equal(t, []string{"Q1", "Q2", "Q3"}, av.Quarters["2024"])
	assert.Equal(t, []string{"Q1-Q4"}, av.Quarters["2023"])
	assert.Equal(t, []string{"Q1-Q2"}, av.Quarters["2022"])
}

func TestCatalog_Available_MissingDir(t *testing.T) {
	c := NewCatalog(filepath.Join(t.TempDir(), "nope"))
	_, err := c.Available()
	assert.Error(t, err)
}

func TestCatalog_Resolve(t *testing.T) {
	c := NewCatalog(setupDataDir(t))

	e, err := c.Resolve(model.Period{Year: 2024, Quarter: "Q2"})
	require.NoError(t, err)
	assert.Equal(t, "tfwp_2024q2_pos_en.xlsx", filepath.Base(e.Path))

	e, err = c.Resolve(model.Period{Year: 2024, Quarter: "Q3"})
	require.NoError(t, err)
	assert.Equal(t, "tfwp_2024q3_pos_en.csv", filepath.Base(e.Path))

	// Full-year and half-year requests fall back to the first file.
	e, err = c.Resolve(model.Period{Year: 2024, Quarter: "Q1-Q4"})
	require.NoError(t, err)
	assert.Equal(t, "tfwp_2024q1_pos_en.xlsx", filepath.Base(e.Path))
	assert.Equal(t, "Q1-Q4", e.Period.Quarter)

	e, err = c.Resolve(model.Period{Year: 2023, Quarter: "Q1-Q4"})
	require.NoError(t, err)
	assert.Equal(t, "tfwp_2023_annual.xlsx", filepath.Base(e.Path))
}

func TestCatalog_Resolve_NotFound(t *testing.T) {
	c := NewCatalog(setupDataDir(t))

	tests := []model.Period{
		{Year: 2024, Quarter: "Q4"},
		{Year: 2019, Quarter: "Q1"},
		{Year: 2024, Quarter: "Q9"},
		{Year: 2023, Quarter: "Q1"},
	}
	for _, p := range tests {
		t.Run(p.String(), func(t *testing.T) {
			_, err := c.Resolve(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrPeriodNotFound))
		})
	}
}

func TestCatalog_Resolve_EmptyYear(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2025"), 0o755))
	c := NewCatalog(dir)

	_, err := c.Resolve(model.Period{Year: 2025, Quarter: "Q1-Q4"})
	assert.True(t, errors.Is(err, ErrPeriodNotFound))
}
