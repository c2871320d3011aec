package desktop

import (
	"context"
	"strings"

	"github.com/timmy/bingwall/internal/logger"
)

// Config holds the gsettings invocation for the MATE background.
type Config struct {
	Command       string // gsettings
	Schema        string // org.mate.background
	PictureOption string // stretched
}

// Mate reads and writes the MATE desktop background through gsettings.
type Mate struct {
	cfg    Config
	runner Runner
	logger *logger.Logger
}

// NewMate creates a MATE adapter. A nil runner uses ExecRunner.
func NewMate(cfg Config, runner Runner, log *logger.Logger) *Mate {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Mate{cfg: cfg, runner: runner, logger: log}
}

func (m *Mate) log(ctx context.Context) *logger.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	if m.logger != nil {
		return m.logger
	}
	return logger.GetDefault()
}

// GetBackground returns the current picture-filename, or "" when unset
// or when gsettings fails.
func (m *Mate) GetBackground(ctx context.Context) (string, error) {
	res, err := m.spawn(ctx, "get", m.cfg.Schema, "picture-filename")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", nil
	}
	return unquote(strings.TrimSpace(res.Stdout)), nil
}

// SetBackground points the desktop at path and sets the picture option.
// Nothing is run when path is empty or already the current background.
// Reports whether the set commands were issued.
func (m *Mate) SetBackground(ctx context.Context, path string) (bool, error) {
	if path == "" {
		m.log(ctx).Warn("No wallpaper available, background left unchanged")
		return false, nil
	}

	current, err := m.GetBackground(ctx)
	if err != nil {
		return false, err
	}
	if current == path {
		m.log(ctx).WithField(logger.FieldPath, path).Debug("set: no change")
		return false, nil
	}

	if _, err := m.spawn(ctx, "set", m.cfg.Schema, "picture-filename", path); err != nil {
		return false, err
	}
	if _, err := m.spawn(ctx, "set", m.cfg.Schema, "picture-options", m.cfg.PictureOption); err != nil {
		return true, err
	}
	return true, nil
}

// spawn runs one gsettings command and logs its outcome.
func (m *Mate) spawn(ctx context.Context, args ...string) (*Result, error) {
	command := m.cfg.Command + " " + strings.Join(args, " ")
	log := m.log(ctx).WithField(logger.FieldCommand, command)
	log.Debug("Running")

	res, err := m.runner.Run(ctx, m.cfg.Command, args...)
	if err != nil {
		log.WithError(err).Error("Failed to start command")
		return nil, err
	}

	fields := logger.Fields{logger.FieldExitCode: res.ExitCode}
	if out := strings.TrimSpace(res.Stdout); out != "" {
		fields["stdout"] = out
	}
	if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
		fields["stderr"] = errOut
	}
	if res.ExitCode != 0 {
		log.WithFields(fields).Warn("Command exited with non-zero status")
	} else {
		log.WithFields(fields).Info("Command finished")
	}
	return res, nil
}

// unquote strips one quote character from each end, as printed by gsettings get.
func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
