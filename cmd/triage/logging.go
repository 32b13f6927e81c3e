package main

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger writes text logs to stderr and, when file is set, to a rotating file.
func newLogger(level slog.Level, file string, stderr io.Writer) (*slog.Logger, func() error) {
	w := stderr
	closeFn := func() error { return nil }
	if file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    20, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		w = io.MultiWriter(stderr, rotating)
		closeFn = rotating.Close
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return logger, closeFn
}
