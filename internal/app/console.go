package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"deribit-hedge-bot/internal/hedge"
)

// runConsole reads one command per line until ctx ends or input closes.
// The scanner goroutine outlives ctx while blocked on a read.
func (a *App) runConsole(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			a.log.Warn("console read failed", zap.Error(err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if out := a.handleConsoleLine(ctx, line); out != "" {
				fmt.Println(out)
			}
		}
	}
}

func (a *App) handleConsoleLine(ctx context.Context, line string) string {
	word := strings.ToLower(strings.TrimSpace(line))
	switch word {
	case "":
		return ""
	case "status":
		return a.statusText()
	case "y", "yes", "on":
		return a.consoleSubmit(ctx, hedge.CommandActivate)
	case "n", "no", "off":
		return a.consoleSubmit(ctx, hedge.CommandDeactivate)
	}
	return "commands: y|on, n|off, status"
}

func (a *App) consoleSubmit(ctx context.Context, cmd hedge.Command) string {
	if err := a.submit(ctx, cmd); err != nil {
		return fmt.Sprintf("command failed: %v", err)
	}
	return fmt.Sprintf("hedge %s queued", cmd)
}
