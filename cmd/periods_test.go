package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lmia-map/internal/dataset"
)

func TestPrintAvailability(t *testing.T) {
	var buf bytes.Buffer
	printAvailability(&buf, "data", &dataset.Availability{
		Years:    []int{2023, 2024},
		Quarters: map[string][]string{"2023": {"Q1-Q4"}, "2024": {"Q1", "Q2"}},
	})
	assert.Equal(t, "2023\tQ1-Q4\n2024\tQ1, Q2\n", buf.String())

	buf.Reset()
	printAvailability(&buf, "data", &dataset.Availability{})
	assert.Equal(t, "no data files under data\n", buf.String())
}

func TestPeriodsCommand(t *testing.T) {
	cfg = testConfig(t)
	var buf bytes.Buffer
	periodsCmd.SetOut(&buf)
	defer periodsCmd.SetOut(nil)

	err := periodsCmd.RunE(periodsCmd, nil)
	assert.NoError(t, err)
	assert.Equal(t, "2024\tQ1\n", buf.String())
}
