// Package wallpaper hands cached images to the desktop environment.
package wallpaper

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/astraldesk/skywall/internal/domain"
	"github.com/astraldesk/skywall/internal/port"
)

// CommandApplier sets the wallpaper by running a user-configured shell
// command. The template may reference {screen}, {path} and {fit}, replaced
// with the screen identifier, the cached image path and the screen's fit
// mode. Desktop environments differ too much for a built-in default, so the
// command is the integration point.
type CommandApplier struct {
	template string
	logger   *zap.Logger
}

// Ensure CommandApplier implements port.Applier
var _ port.Applier = (*CommandApplier)(nil)

// NewCommandApplier creates an applier around a command template
func NewCommandApplier(template string, logger *zap.Logger) (*CommandApplier, error) {
	if strings.TrimSpace(template) == "" {
		return nil, fmt.Errorf("apply command template is empty")
	}
	if !strings.Contains(template, "{path}") {
		return nil, fmt.Errorf("apply command template must reference {path}")
	}

	return &CommandApplier{
		template: template,
		logger:   logger,
	}, nil
}

// Apply renders the template and runs it through the shell
func (a *CommandApplier) Apply(ctx context.Context, screen domain.ScreenConfig, imagePath string) error {
	rendered := renderCommand(a.template, screen, imagePath)

	a.logger.Debug("running apply command",
		zap.String("screen_id", screen.ID),
		zap.String("command", rendered))

	cmd := exec.CommandContext(ctx, "sh", "-c", rendered)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("apply command failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// renderCommand substitutes the template placeholders. The image path is
// single-quoted so file names with spaces survive the shell.
func renderCommand(template string, screen domain.ScreenConfig, imagePath string) string {
	replacer := strings.NewReplacer(
		"{screen}", screen.ID,
		"{path}", shellQuote(imagePath),
		"{fit}", string(screen.Fit),
	)
	return replacer.Replace(template)
}

// shellQuote wraps s in single quotes, escaping embedded ones
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// NullApplier logs the assignment instead of performing it. Used when no
// apply command is configured, which keeps rotation state advancing so a
// later integration picks up mid-cycle.
type NullApplier struct {
	logger *zap.Logger
}

// Ensure NullApplier implements port.Applier
var _ port.Applier = (*NullApplier)(nil)

// NewNullApplier creates a logging-only applier
func NewNullApplier(logger *zap.Logger) *NullApplier {
	return &NullApplier{logger: logger}
}

// Apply logs what would have been assigned
func (a *NullApplier) Apply(_ context.Context, screen domain.ScreenConfig, imagePath string) error {
	a.logger.Info("no apply command configured, skipping wallpaper assignment",
		zap.String("screen_id", screen.ID),
		zap.String("path", imagePath))
	return nil
}
