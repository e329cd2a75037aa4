package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/localcompose/internal/config"
)

// FileFlags locate the configuration file
type FileFlags struct {
	File    string
	WorkDir string
}

// UpFlags holds flags for the up command
type UpFlags struct {
	FileFlags
	Detached    bool
	Color       string
	KillWait    float64
	MetricsAddr string
	APIAddr     string
	History     string
	LogLevel    string
}

// DownFlags holds flags for the down command
type DownFlags struct {
	FileFlags
}

// PsFlags holds flags for the ps command
type PsFlags struct {
	FileFlags
	Timeout time.Duration
}

func addFileFlags(cmd *cobra.Command, f *FileFlags) {
	cmd.Flags().StringVarP(&f.File, "file", "f", config.FileName, "configuration file, relative to the work dir")
	cmd.Flags().StringVarP(&f.WorkDir, "workdir", "w", ".", "working directory of the services")
}

// Path is the configuration file resolved against the work dir.
func (f FileFlags) Path() string {
	if filepath.IsAbs(f.File) {
		return f.File
	}
	return filepath.Join(f.WorkDir, f.File)
}
