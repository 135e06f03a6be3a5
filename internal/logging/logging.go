// Package logging sets up the process-wide google/logger instance.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/logger"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init routes the default logger to a rotating file. Without a file, or
// when verbose is set, records also go to the console.
func Init(name, file string, verbose bool, maxSizeMB int) *logger.Logger {
	var w io.Writer = io.Discard
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to create log directory for %s: %v\n", file, err)
			file = ""
		} else {
			if maxSizeMB <= 0 {
				maxSizeMB = 100
			}
			w = &lumberjack.Logger{
				Filename:   file,
				MaxSize:    maxSizeMB,
				MaxBackups: 7,
				MaxAge:     14,
				Compress:   true,
			}
		}
	}
	return logger.Init(name, verbose || file == "", false, w)
}
