package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wolfman30/medorder-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medorder-assistant/internal/config"
	"github.com/wolfman30/medorder-assistant/internal/dialogue"
	"github.com/wolfman30/medorder-assistant/internal/match"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

type chatOptions struct {
	contextFile  string
	sessionID    string
	retrieval    bool
	printContext bool
}

func newChatCmd(root *cliOptions) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the ordering engine",
		Long: `Reads one message per line from stdin and prints each reply.

The session context is kept between lines. With --context-file it is loaded
before the first line and written back after the last one.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := root.config()
			engine, err := buildLocalEngine(cmd.Context(), cfg, root.logger(cmd))
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), engine, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.contextFile, "context-file", "", "load and save the session context as JSON")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "session id (random when empty)")
	cmd.Flags().BoolVar(&opts.retrieval, "retrieval", false, "answer in retrieval mode")
	cmd.Flags().BoolVar(&opts.printContext, "print-context", false, "print the context JSON after every reply")
	return cmd
}

// buildLocalEngine wires an in-memory engine over the seed catalog. Orders
// placed here are kept in process memory only.
func buildLocalEngine(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*dialogue.Engine, error) {
	getter, err := seedGetter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	reader, err := bootstrap.BuildCatalog(ctx, cfg, nil, getter, logger)
	if err != nil {
		return nil, err
	}
	embedder, err := bootstrap.BuildEmbedder(cfg, nil)
	if err != nil {
		return nil, err
	}
	matcher, _, err := bootstrap.BuildMatcher(ctx, cfg, reader, embedder, logger)
	if err != nil {
		return nil, err
	}
	deps := bootstrap.OrderDeps{Catalog: reader, Matcher: matcher, Logger: logger}
	svc, err := bootstrap.BuildOrderService(cfg, deps)
	if err != nil {
		return nil, err
	}
	return bootstrap.BuildEngine(cfg, deps, svc)
}

type turnHandler interface {
	HandleTurn(ctx context.Context, req dialogue.Request) (dialogue.Reply, error)
}

func runChat(ctx context.Context, engine turnHandler, in io.Reader, out io.Writer, opts *chatOptions) error {
	sc, err := loadContext(opts.contextFile)
	if err != nil {
		return err
	}
	session := opts.sessionID
	if session == "" {
		session = uuid.NewString()
	}
	mode := match.ModeChat
	if opts.retrieval {
		mode = match.ModeRetrieval
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply, err := engine.HandleTurn(ctx, dialogue.Request{
			Message:   line,
			SessionID: session,
			Context:   sc,
			Mode:      mode,
		})
		if err != nil {
			return fmt.Errorf("turn %q: %w", line, err)
		}
		sc = reply.UpdatedContext
		fmt.Fprintf(out, "> %s\n%s\n", line, reply.Response)
		if reply.OrderData != nil && reply.OrderData.OrderID != "" {
			fmt.Fprintf(out, "[order %s]\n", reply.OrderData.OrderID)
		}
		if opts.printContext {
			raw, err := json.Marshal(sc)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", raw)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return saveContext(opts.contextFile, sc)
}

func loadContext(path string) (dialogue.SessionContext, error) {
	var sc dialogue.SessionContext
	if path == "" {
		return sc, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return sc, nil
	}
	if err != nil {
		return sc, fmt.Errorf("read context: %w", err)
	}
	if err := json.Unmarshal(raw, &sc); err != nil {
		return sc, fmt.Errorf("decode context %s: %w", path, err)
	}
	return sc, nil
}

func saveContext(path string, sc dialogue.SessionContext) error {
	if path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
