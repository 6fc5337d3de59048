package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/botforge/botforge/internal/application"
	"github.com/botforge/botforge/internal/infrastructure/config"
	"github.com/botforge/botforge/internal/infrastructure/logger"
	"github.com/botforge/botforge/internal/interfaces/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "botforge",
		Short: "BotForge — панель управления Telegram-ботами",
		Long:  "BotForge управляет парком Telegram-ботов, отвечающих через внешние LLM-провайдеры: веб-панель, HTTP API и сервисные команды в одном бинаре",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить панель управления",
		RunE:  runServe,
	}
	serveCmd.Flags().StringP("config", "c", "", "путь к файлу конфигурации")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Чат с ассистентом поддержки",
		RunE:  runChat,
	}
	addClientFlags(chatCmd)

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Следить за журналом сервера",
		RunE:  runLogs,
	}
	addClientFlags(logsCmd)
	logsCmd.Flags().String("level", "", "фильтр по уровню (error, warning, success, info)")
	logsCmd.Flags().String("category", "", "фильтр по категории (telegram, bot, api, ...)")

	rootCmd.AddCommand(serveCmd, chatCmd, logsCmd, &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("botforge v%s\n", cli.Version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("server", "s", "localhost:3000", "адрес сервера панели")
	cmd.Flags().StringP("email", "e", "", "email администратора")
	cmd.Flags().StringP("password", "p", "", "пароль (по умолчанию запрашивается)")
}

// ─── Server Mode ───

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, level, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("Starting BotForge",
		zap.String("version", cli.Version),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.NewApp(cfg, log, level)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}

	total, active := app.BotCounts(ctx)
	fmt.Println(cli.RenderBanner(cli.BannerInfo{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Bots:    int(total),
		Running: int(active),
		Config:  cfg.Source,
	}, termWidth()))

	if err := app.Start(ctx); err != nil {
		log.Fatal("Failed to start application", zap.Error(err))
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}
	return nil
}

// ─── Client Modes ───

func runChat(cmd *cobra.Command, args []string) error {
	server, email, password, err := clientSettings(cmd)
	if err != nil {
		return err
	}
	return cli.RunChat(cli.ChatConfig{
		Server:   server,
		Email:    email,
		Password: password,
	})
}

func runLogs(cmd *cobra.Command, args []string) error {
	server, email, password, err := clientSettings(cmd)
	if err != nil {
		return err
	}
	lvl, _ := cmd.Flags().GetString("level")
	category, _ := cmd.Flags().GetString("category")
	return cli.RunLogs(cli.LogsConfig{
		Server:   server,
		Email:    email,
		Password: password,
		Level:    lvl,
		Category: category,
	})
}

func clientSettings(cmd *cobra.Command) (server, email, password string, err error) {
	server, _ = cmd.Flags().GetString("server")
	email, _ = cmd.Flags().GetString("email")
	password, _ = cmd.Flags().GetString("password")

	reader := bufio.NewReader(os.Stdin)
	if email == "" {
		fmt.Print("Email: ")
		line, readErr := reader.ReadString('\n')
		if readErr != nil {
			return "", "", "", readErr
		}
		email = strings.TrimSpace(line)
	}
	if password == "" {
		// No echo for the password prompt.
		fmt.Print("Пароль: ")
		raw, readErr := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if readErr != nil {
			return "", "", "", readErr
		}
		password = string(raw)
	}
	return server, email, password, nil
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
