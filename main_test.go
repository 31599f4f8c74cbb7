package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkhunter/config"
	"pkhunter/models"
)

const sampleConfig = "conf/defaults.conf"

func TestRunUsage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"NoArgs", nil, 0},
		{"Help", []string{"-h"}, 0},
		{"LongHelp", []string{"--help", "-i", "access.log"}, 0},
		{"MissingInput", []string{"-o", "out.csv"}, 2},
		{"UnknownFlag", []string{"--bogus"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(tt.args))
		})
	}
}

func TestRunMissingLogFile(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "r.csv")

	code := run([]string{"-i", filepath.Join(dir, "missing.log"), "-o", reportPath, "-c", sampleConfig, "--no-progress"})
	assert.Equal(t, 1, code)
	assert.NoFileExists(t, reportPath, "no report is created when the log cannot be opened")
}

func TestRunMissingConfig(t *testing.T) {
	dir := t.TempDir()
	code := run([]string{"-i", filepath.Join(dir, "access.log"), "-c", filepath.Join(dir, "nope.conf")})
	assert.Equal(t, 1, code)
}

func TestHuntMissingLogFile(t *testing.T) {
	cfg, err := config.LoadConfig(sampleConfig)
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(bytes.NewBuffer(nil))

	dir := t.TempDir()
	opts := options{
		logFile:    filepath.Join(dir, "missing.log"),
		reportFile: filepath.Join(dir, "r.csv"),
		noProgress: true,
	}
	err = hunt(cfg, opts, log)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrLogSource)
	assert.Contains(t, err.Error(), "log file does not exist")
	assert.NoFileExists(t, opts.reportFile)
}
