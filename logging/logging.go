package logging

import (
	"io"
	"os"

	oplogging "github.com/op/go-logging"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bitrollup/da-syncer/config"
)

// Logger is the shared logger for all packages. It writes to stderr until
// InitLogger installs the configured backend.
var Logger = oplogging.MustGetLogger("da-syncer")

var format = oplogging.MustStringFormatter(
	`%{time:2006-01-02T15:04:05.000Z07:00} %{level:.4s} %{shortfile} %{message}`,
)

func InitLogger(cfg *config.LogConfig) {
	var writers []io.Writer
	if cfg.UseConsoleLogger {
		writers = append(writers, os.Stdout)
	}
	if cfg.UseFileLogger {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxFileSizeInMB,
			MaxBackups: cfg.MaxBackupsOfLogFiles,
			MaxAge:     cfg.MaxAgeToRetainLogFilesInDays,
			Compress:   cfg.Compress,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	backend := oplogging.NewLogBackend(io.MultiWriter(writers...), "", 0)
	leveled := oplogging.AddModuleLevel(oplogging.NewBackendFormatter(backend, format))
	level, err := oplogging.LogLevel(cfg.Level)
	if err != nil {
		panic(err)
	}
	leveled.SetLevel(level, "")
	Logger.SetBackend(leveled)
}
