package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"papermind/internal/config"
	"papermind/internal/conversation"
	"papermind/internal/index"
	"papermind/internal/logger"
	"papermind/internal/session"
	"papermind/internal/store"
	"papermind/internal/tui"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func (o *rootOptions) load() (*config.AppConfig, error) {
	if o.configPath == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, errors.Wrap(err, "load config")
	}
	cfg, err := config.Load(o.configPath)
	return cfg, errors.Wrapf(err, "load config %s", o.configPath)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "papermind",
		Short:         "Chat with your documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/papermind/config.yaml)")
	root.AddCommand(newIndexCmd(opts), newThreadsCmd(opts), newHistoryCmd(opts))
	return root
}

func runChat(ctx context.Context, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log, false)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.session.Open(ctx)
	if err != nil {
		return err
	}
	log.Info("session opened", zap.String("thread", state.ThreadID), zap.String("document", state.Document))
	_, err = tea.NewProgram(tui.New(ctx, a.session, state), tea.WithAltScreen()).Run()
	return err
}

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "index <file>",
		Short: "Build the index for a document ahead of time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log, true)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			mgr, err := buildIndex(cfg, log)
			if err != nil {
				return err
			}
			path := args[0]
			if name == "" {
				name = filepath.Base(path)
			}
			src, f, err := index.FileSource(path)
			if err != nil {
				return err
			}
			defer f.Close()
			loaded, err := mgr.Load(cmd.Context(), src, name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if loaded.Cached {
				fmt.Fprintf(out, "%s already indexed (%d chunks) as %s\n", loaded.Name, loaded.Chunks, loaded.Key)
				return nil
			}
			fmt.Fprintf(out, "indexed %s (%d chunks) as %s\n", loaded.Name, loaded.Chunks, loaded.Key)
			if loaded.Summary != "" {
				fmt.Fprintln(out, loaded.Summary)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (default: file name)")
	return cmd
}

func newThreadsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List conversation threads grouped by recency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, st *store.Store) error {
				threads, err := st.Threads.List(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				label := color.New(color.Bold, color.FgCyan)
				for _, c := range session.CategorizeThreads(threads, time.Now()) {
					_, _ = label.Fprintln(out, c.Label)
					for _, th := range c.Threads {
						doc := ""
						if th.DocumentName != nil {
							doc = "  [" + *th.DocumentName + "]"
						}
						fmt.Fprintf(out, "  %s  %s%s\n", th.ID, th.Name, doc)
					}
				}
				return nil
			})
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <thread-id>",
		Short: "Print a thread's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(ctx context.Context, st *store.Store) error {
				if _, err := st.Threads.Get(ctx, args[0]); err != nil {
					return err
				}
				msgs, err := st.Messages.List(ctx, args[0])
				if err != nil {
					return err
				}
				entries := conversation.ToUI(msgs)
				out := cmd.OutOrStdout()
				roles := map[conversation.Role]*color.Color{
					conversation.RoleUser:      color.New(color.FgGreen),
					conversation.RoleAssistant: color.New(color.FgMagenta),
					conversation.RoleToolCall:  color.New(color.FgYellow),
				}
				for _, e := range entries {
					tag := roles[e.Role].Sprintf("[%s]", e.Role)
					switch e.Role {
					case conversation.RoleToolCall:
						fmt.Fprintf(out, "%s %q (%d passages)\n", tag, e.Query, len(e.Passages))
					default:
						fmt.Fprintf(out, "%s %s\n", tag, strings.TrimSpace(e.Content))
					}
				}
				return nil
			})
		},
	}
}

// withStore opens the conversation database for commands that only read it.
func withStore(ctx context.Context, opts *rootOptions, fn func(context.Context, *store.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}
