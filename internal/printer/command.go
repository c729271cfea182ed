package printer

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/orrn/fileprint/internal/core"
)

const DefaultCommand = "lp"

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandPrinter submits files to the local spooler through a CUPS
// compatible lp command.
type CommandPrinter struct {
	command string
	run     runFunc
	logger  *zap.Logger
}

func NewCommandPrinter(command string, logger *zap.Logger) *CommandPrinter {
	if command == "" {
		command = DefaultCommand
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandPrinter{
		command: command,
		run:     execRun,
		logger:  logger.Named("printer"),
	}
}

func (p *CommandPrinter) PrintDocument(ctx context.Context, path string, opts core.DocumentOptions) error {
	return p.exec(ctx, DocumentArgs(path, opts))
}

func (p *CommandPrinter) PrintImage(ctx context.Context, deviceName, path string) error {
	return p.exec(ctx, DocumentArgs(path, core.DocumentOptions{Printer: deviceName, Scale: "fit"}))
}

func (p *CommandPrinter) exec(ctx context.Context, args []string) error {
	p.logger.Debug("running print command", zap.String("command", p.command), zap.Strings("args", args))
	out, err := p.run(ctx, p.command, args...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("%s failed: %w", p.command, err)
		}
		return fmt.Errorf("%s failed: %w: %s", p.command, err, msg)
	}
	if msg := strings.TrimSpace(string(out)); msg != "" {
		p.logger.Info("print command accepted", zap.String("output", msg))
	}
	return nil
}

// DocumentArgs maps print options onto lp arguments.
func DocumentArgs(path string, opts core.DocumentOptions) []string {
	var args []string
	if opts.Silent {
		args = append(args, "-s")
	}
	if opts.Printer != "" {
		args = append(args, "-d", opts.Printer)
	}
	if opts.Pages != "" {
		args = append(args, "-P", opts.Pages)
	}
	switch strings.ToLower(opts.Orientation) {
	case "portrait":
		args = append(args, "-o", "orientation-requested=3")
	case "landscape":
		args = append(args, "-o", "orientation-requested=4")
	}
	if opts.PaperSize != "" {
		args = append(args, "-o", "media="+opts.PaperSize)
	}
	switch opts.Scale {
	case "fit", "shrink":
		args = append(args, "-o", "fit-to-page")
	}
	if opts.Monochrome {
		args = append(args, "-o", "print-color-mode=monochrome")
	} else {
		args = append(args, "-o", "print-color-mode=color")
	}
	return append(args, "--", path)
}

var (
	_ core.DocumentPrinter = (*CommandPrinter)(nil)
	_ core.ImagePrinter    = (*CommandPrinter)(nil)
)
