package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePeriods(t *testing.T) {
	assert.NoError(t, validatePeriods(nil))
	assert.NoError(t, validatePeriods([]string{"annual", "quarter"}))
	assert.Error(t, validatePeriods([]string{"annual", "FY"}))
}

func TestRootCmd(t *testing.T) {
	root := rootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"financials", "filings", "coverage", "check", "seed-templates"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("concurrency"))

	seed, _, err := root.Find([]string{"seed-templates"})
	require.NoError(t, err)
	dir := seed.Flags().Lookup("dir")
	require.NotNil(t, dir)
	assert.Equal(t, "templates", dir.DefValue)
}

func TestFinancialsRequiresTicker(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"financials"})
	assert.Error(t, root.Execute())
}

func TestSeedTemplatesMissingDir(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"seed-templates", "--dir", t.TempDir() + "/missing"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading template dir")
}
