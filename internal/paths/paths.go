package paths

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// Name used for directory and file naming.
const toolName = "cudaforge"

// Path to the directory for configuration files.
//
//	Linux:   $XDG_CONFIG_HOME/cudaforge or ~/.config/cudaforge
//	macOS:   ~/Library/Application Support/cudaforge
func Config() string {
	return filepath.Join(xdg.ConfigHome, toolName)
}

// Default path to the build matrix file.
//
//	Linux:   $XDG_CONFIG_HOME/cudaforge/matrix.yaml
//	macOS:   ~/Library/Application Support/cudaforge/matrix.yaml
func MatrixFile() string {
	return filepath.Join(Config(), "matrix.yaml")
}
