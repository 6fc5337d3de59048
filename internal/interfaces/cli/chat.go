package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"golang.org/x/term"
)

// ─── ANSI Helpers ───

const (
	reset    = "\033[0m"
	bold     = "\033[1m"
	dim      = "\033[2m"
	italic   = "\033[3m"
	cyan     = "\033[96m"
	cyanBold = "\033[96m\033[1m"
	green    = "\033[92m"
	yellow   = "\033[93m"
	red      = "\033[91m"
	redBold  = "\033[91m\033[1m"
	dimText  = "\033[90m"
	white    = "\033[97m"
	clearLn  = "\033[2K\r"
)

// Braille spinner frames
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ChatConfig holds the support REPL connection settings.
type ChatConfig struct {
	Server   string
	Email    string
	Password string
}

// RunChat logs in and starts the interactive support chat loop.
func RunChat(cfg ChatConfig) error {
	client, err := NewClient(cfg.Server)
	if err != nil {
		return err
	}
	if err := client.Login(context.Background(), cfg.Email, cfg.Password); err != nil {
		return fmt.Errorf("вход не выполнен: %w", err)
	}

	renderer := NewRenderer(termWidth())
	fmt.Println(renderChatHeader(cfg.Server))

	// Readline for proper line editing (backspace, arrows, history)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\001\033[1;36m\002❯\001\033[0m\002 ",
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer rl.Close()

	// Handle SIGTERM for clean exit
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Printf("\n%s👋 До встречи%s\n", dimText, reset)
		rl.Close()
		os.Exit(0)
	}()

	// REPL loop
	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Printf("\n%s👋 До встречи%s\n", dimText, reset)
				return nil
			}
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		// Slash command
		if cmd := ParseSlashCommand(input); cmd != nil {
			result := ExecuteCommand(cmd, cfg.Server)
			if result.IsQuit {
				fmt.Printf("%s👋 До встречи%s\n", dimText, reset)
				return nil
			}
			if result.Output != "" {
				fmt.Println(result.Output)
			}
			continue
		}

		askSupport(client, renderer, input)
	}
}

// renderChatHeader is the compact banner shown when the REPL starts.
func renderChatHeader(server string) string {
	title := lipgloss.NewStyle().Foreground(colorCyan).Bold(true).Render("◆ BotForge · чат поддержки")
	sub := lipgloss.NewStyle().Foreground(colorDim).Render(
		fmt.Sprintf("  %s · /help команды · Ctrl+C выход", server))
	return fmt.Sprintf("\n%s\n%s\n", title, sub)
}

// askSupport sends one question and renders the streamed reply. The
// spinner tracks the incoming text; the full answer is printed once,
// through glamour, when the stream finishes.
func askSupport(client *Client, renderer *Renderer, question string) {
	// Context with cancel for Ctrl+C during streaming
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT)
		defer signal.Stop(ch)
		select {
		case <-ch:
			cancel()
			fmt.Printf("\n%s⏹ Прервано%s\n", yellow, reset)
		case <-ctx.Done():
		}
	}()

	spinner := newSpinner()
	spinner.Update("ассистент думает...")
	start := time.Now()

	received := 0
	reply, err := client.SupportChat(ctx, question, func(delta string) {
		received += len([]rune(delta))
		spinner.Update(fmt.Sprintf("ассистент печатает... %d зн.", received))
	})
	spinner.Stop()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		fmt.Printf("%s✗ %s%s\n", redBold, err, reset)
		return
	}
	if reply == "" {
		fmt.Printf("%s(пустой ответ)%s\n", dimText, reset)
		return
	}

	fmt.Println(renderer.RenderMarkdown(reply))
	fmt.Printf("\n%s─── %s · %d зн. ───%s\n", dimText, fmtDur(time.Since(start)), received, reset)
}

// ─── Braille Spinner ───

type asyncSpinner struct {
	mu      sync.Mutex
	running bool
	msg     string
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newSpinner() *asyncSpinner {
	return &asyncSpinner{}
}

func (s *asyncSpinner) Update(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msg = msg
	if !s.running {
		s.running = true
		s.stopCh = make(chan struct{})
		s.doneCh = make(chan struct{})
		go s.run()
	}
}

func (s *asyncSpinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
	fmt.Print(clearLn) // Clear spinner line
}

func (s *asyncSpinner) run() {
	defer close(s.doneCh)

	frame := 0
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			msg := s.msg
			s.mu.Unlock()

			f := spinnerFrames[frame%len(spinnerFrames)]
			fmt.Printf("%s%s%s %s%s%s", clearLn, cyanBold, f, dimText, msg, reset)
			frame++
		}
	}
}

// ─── Helpers ───

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func fmtDur(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
