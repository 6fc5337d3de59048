package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/botforge/botforge/internal/infrastructure/logger"
)

const fallbackLogLimit = 100

// LogsConfig holds the log follower connection settings.
type LogsConfig struct {
	Server   string
	Email    string
	Password string
	Level    string
	Category string
}

// RunLogs logs in and follows the live log stream. When the websocket
// cannot be established it falls back to a one-shot dump of the debug
// buffer.
func RunLogs(cfg LogsConfig) error {
	client, err := NewClient(cfg.Server)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := client.Login(ctx, cfg.Email, cfg.Password); err != nil {
		return fmt.Errorf("вход не выполнен: %w", err)
	}

	fmt.Printf("%sподключение к потоку логов %s...%s\n", dimText, cfg.Server, reset)
	streamErr := client.FollowLogs(ctx, cfg.Level, cfg.Category, printLogEntry)
	if streamErr == nil || ctx.Err() != nil {
		fmt.Printf("%sпоток закрыт%s\n", dimText, reset)
		return nil
	}

	// Dead socket: dump what the server buffered instead.
	fmt.Printf("%s⚠ Поток недоступен (%v), показываю последние записи%s\n", yellow, streamErr, reset)
	entries, total, err := client.RecentLogs(ctx, cfg.Level, cfg.Category, fallbackLogLimit)
	if err != nil {
		return err
	}
	// The buffer returns newest first; a dump reads better oldest first.
	for i := len(entries) - 1; i >= 0; i-- {
		printLogEntry(entries[i])
	}
	fmt.Printf("%s─── %d из %d записей ───%s\n", dimText, len(entries), total, reset)
	return nil
}

// printLogEntry renders one entry in the debug panel's palette.
func printLogEntry(e logger.Entry) {
	color := white
	switch e.Level {
	case logger.LevelError:
		color = red
	case logger.LevelWarning:
		color = yellow
	case logger.LevelSuccess:
		color = green
	case logger.LevelInfo:
		color = cyan
	}

	line := fmt.Sprintf("%s%s%s %s%-7s%s %s%-8s%s %s",
		dimText, e.Timestamp.Local().Format("15:04:05"), reset,
		color, e.Level, reset,
		dimText, e.Category, reset,
		e.Message)
	if e.Details != "" {
		line += fmt.Sprintf(" %s(%s)%s", dimText, e.Details, reset)
	}
	fmt.Println(line)
}
