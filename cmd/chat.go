package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/tandem/internal/checkpoint"
	"github.com/fakeyudi/tandem/internal/engine"
	"github.com/fakeyudi/tandem/internal/gate"
	"github.com/fakeyudi/tandem/internal/model"
	"github.com/fakeyudi/tandem/internal/session"
	"github.com/fakeyudi/tandem/internal/workspace"
)

var (
	resumeFlag    bool
	sessionIDFlag string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive pair-programming session",
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return errors.New("ANTHROPIC_API_KEY is not set")
		}

		workDir, err := os.Getwd()
		if err != nil {
			return err
		}

		store, err := session.NewStore(cfg.SessionsDir)
		if err != nil {
			return err
		}

		sess, err := openSession(store)
		if err != nil {
			return err
		}

		checkpoints := checkpoint.NewManager(workDir, logger)
		if err := checkpoints.EnsureRepo(); err != nil {
			return err
		}
		if cfg.SessionBranch {
			branch, err := checkpoints.StartSessionBranch(time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Checkpointing on branch %s\n", branch)
		}

		watcher, err := workspace.NewWatcher(workDir, cfg.IgnorePatterns, logger)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go watcher.Start(ctx)

		stdin := bufio.NewReader(os.Stdin)
		eng := engine.New(engine.Options{
			Config:      cfg,
			WorkDir:     workDir,
			Store:       store,
			Session:     sess,
			Gate:        gate.NewTerminalGate(stdin, os.Stdout, logger),
			Checkpoints: checkpoints,
			Client:      model.NewAnthropicClient(apiKey, cfg.Model, logger),
			Watcher:     watcher,
			Out:         os.Stdout,
			Log:         logger,
		})

		return repl(ctx, eng, store, stdin)
	},
}

func init() {
	chatCmd.Flags().BoolVarP(&resumeFlag, "resume", "r", false, "resume the most recent session")
	chatCmd.Flags().StringVar(&sessionIDFlag, "session", "", "resume a specific session by id")
	rootCmd.AddCommand(chatCmd)
}

// openSession picks the conversation to work in, honoring --resume and
// --session.
func openSession(store session.Store) (*session.Session, error) {
	switch {
	case sessionIDFlag != "":
		return store.LoadByID(sessionIDFlag)
	case resumeFlag:
		sess, err := store.LoadLatest()
		if errors.Is(err, session.ErrNoSession) {
			return session.New(time.Now()), nil
		}
		return sess, err
	default:
		return session.New(time.Now()), nil
	}
}

// repl reads user input until exit, routing each line to the engine.
func repl(ctx context.Context, eng *engine.Engine, store session.Store, stdin *bufio.Reader) error {
	fmt.Println("tandem: chat started. Type 'help' for commands, 'exit' to leave.")

	for {
		fmt.Print("\n> ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			// EOF: treat like exit.
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "":
			continue

		case line == "exit" || line == "quit":
			return nil

		case line == "help":
			printHelp()

		case line == "clear":
			if err := eng.ClearSession(); err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Println("Session cleared.")

		case line == "sessions":
			printSessions(store, eng.Session().StoreID())

		case strings.HasPrefix(line, "switch "):
			if err := switchSession(eng, store, strings.TrimSpace(strings.TrimPrefix(line, "switch "))); err != nil {
				fmt.Println("error:", err)
			}

		case strings.HasPrefix(line, "!"):
			if err := eng.RunBypass(ctx, line); err != nil {
				fmt.Println("error:", err)
			}

		default:
			if err := eng.SendUserTurn(ctx, line); err != nil {
				fmt.Println("\nerror:", err)
				logger.Error("turn failed", zap.Error(err))
				continue
			}
			rerenderLastReply(eng)
		}
	}
}

// rerenderLastReply reprints the assistant's reply through glamour so
// markdown comes out formatted. The raw stream was already shown live.
func rerenderLastReply(eng *engine.Engine) {
	if cfg.PlainOutput || !term.IsTerminal(os.Stdout.Fd()) {
		fmt.Println()
		return
	}
	msgs := eng.Session().Messages
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != session.RoleAssistant {
		fmt.Println()
		return
	}
	pretty, err := glamour.Render(msgs[len(msgs)-1].Content, "dark")
	if err != nil {
		fmt.Println()
		return
	}
	fmt.Print("\n" + pretty)
}

func printHelp() {
	fmt.Print(`
Commands:
  !<command>    run a shell command yourself (checkpointed, shared with the model)
  clear         delete this session and start fresh
  sessions      list saved sessions
  switch <n>    switch to the n-th listed session
  help          show this help
  exit          leave the chat
Anything else is sent to the model.
`)
}

func printSessions(store session.Store, activeID string) {
	ids, err := store.List()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(ids) == 0 {
		fmt.Println("No saved sessions.")
		return
	}
	for i, id := range ids {
		marker := " "
		if id == activeID {
			marker = "*"
		}
		fmt.Printf("%s %2d. %s\n", marker, i+1, id)
	}
}

func switchSession(eng *engine.Engine, store session.Store, arg string) error {
	ids, err := store.List()
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(ids) {
		return fmt.Errorf("no session %q; run 'sessions' to see the list", arg)
	}
	if err := eng.SwitchSession(ids[n-1]); err != nil {
		return err
	}
	fmt.Printf("Switched to session %s (%d messages).\n", ids[n-1], len(eng.Session().Messages))
	return nil
}
