// Package scheduler contains the background machinery of the dispatch
// engine: the per-campaign dispatcher, the polling promotion scheduler, and
// the delivery-status reconciler.
package scheduler

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/lmoretti/whatsflow/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewWorkerLogger builds a logger that writes to stdout and a rotating file
// under the configured log directory. Background workers keep their own log
// streams so a noisy campaign drain is greppable after the fact.
func NewWorkerLogger(cfg config.LoggingConfig, name string) *log.Logger {
	dir := cfg.Dir
	if dir == "" {
		dir = "data"
	}

	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(dir, name+".log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	mw := io.MultiWriter(os.Stdout, rotating)
	return log.New(mw, name+" ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}
