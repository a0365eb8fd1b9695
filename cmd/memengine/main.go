// Package main is the memengine CLI: a thin operator surface over the
// wired Engine (storage, memory pipeline, recall, prompt-cache assembler,
// code index) for local inspection and scripting. The WebSocket transport,
// TUI, and LLM vendor clients described alongside this engine are separate
// collaborators; this binary only exercises the engine directly.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"memengine/internal/config"
	"memengine/internal/domain"
	"memengine/internal/engine"
	"memengine/internal/logging"
	"memengine/internal/recall"
)

var (
	configPath string
	sessionID  string
	verbose    bool
	eng        *engine.Engine
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "memengine",
	Short: "memengine - multi-tier memory and context assembly engine",
	Long: `memengine drives the storage, memory-pipeline, recall, prompt-cache,
and code-index components that feed an LLM coding assistant its per-turn
working set. It has no opinion about the transport, the LLM vendor, or git
plumbing; those are supplied by the caller.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "memengine" {
			return nil
		}
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		ws, _ := os.Getwd()
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize logging: %v\n", err)
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		e, err := engine.New(cfg, nil, nil, nil)
		if err != nil {
			return fmt.Errorf("wire engine: %w", err)
		}
		eng = e
		logger.Debug("engine wired", zap.String("config", configPath), zap.String("session", sessionID))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if eng != nil {
			_ = eng.Close()
		}
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach <path>",
	Short: "Register a repository working copy for the code index to watch and sync",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		id, err := eng.Store.UpsertAttachment(&domain.Attachment{
			SessionID: sessionID,
			RootPath:  root,
			Label:     filepath.Base(root),
			Active:    true,
		})
		if err != nil {
			return fmt.Errorf("attach: %w", err)
		}
		if err := eng.Watcher.WatchAttachment(id, root); err != nil {
			logging.BootWarn("attachment %d registered but watcher failed to start: %v", id, err)
			logger.Warn("watcher failed to start", zap.Int64("attachment_id", id), zap.Error(err))
		}
		logger.Info("attachment registered", zap.Int64("attachment_id", id), zap.String("path", root))
		fmt.Printf("attached id=%d path=%s session=%s\n", id, root, sessionID)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync <attachment-id>",
	Short: "Run one code-index sync pass over an attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid attachment id %q: %w", args[0], err)
		}
		att, err := eng.Store.GetAttachment(id)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()
		result, err := eng.SyncTask.Run(ctx, att.ID, att.RootPath)
		if err != nil {
			return err
		}
		logger.Info("sync complete",
			zap.Int64("attachment_id", att.ID),
			zap.Int("scanned", result.FilesScanned),
			zap.Int("changed", result.FilesChanged),
			zap.Int("failed", result.FilesFailed))
		fmt.Printf("sync complete: scanned=%d changed=%d failed=%d\n",
			result.FilesScanned, result.FilesChanged, result.FilesFailed)
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <role> <content>",
	Short: "Feed one conversational turn into the memory pipeline",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := eng.Pipeline.Ingest(cmd.Context(), 0, sessionID, args[0], args[1])
		if err != nil {
			return err
		}
		logger.Debug("ingested memory entry",
			zap.Int64("id", entry.ID), zap.Bool("embedded", entry.Embedded), zap.Float64("salience", entry.Salience))
		fmt.Printf("ingested id=%d embedded=%v salience=%.2f\n", entry.ID, entry.Embedded, entry.Salience)
		return nil
	},
}

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Assemble a recall context for the session (recent + semantic + code intel)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := eng.Recall.RecallContext(cmd.Context(), recall.Query{
			SessionID: sessionID,
			QueryText: args[0],
		})
		if err != nil {
			return err
		}
		logger.Debug("recall assembled",
			zap.String("query", args[0]), zap.Int("recent", len(rc.Recent)), zap.Int("semantic", len(rc.Semantic)))
		fmt.Printf("recent=%d semantic=%d code_intelligence=%v\n",
			len(rc.Recent), len(rc.Semantic), rc.CodeIntelligence != nil)
		for _, m := range rc.Recent {
			fmt.Printf("  recent  #%d [%s] %s\n", m.ID, m.Role, truncate(m.Content, 80))
		}
		for _, m := range rc.Semantic {
			fmt.Printf("  semantic #%d [%s] %s\n", m.ID, m.Role, truncate(m.Content, 80))
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report which attachments are active and being watched",
	RunE: func(cmd *cobra.Command, args []string) error {
		attachments, err := eng.Store.ListActiveAttachments()
		if err != nil {
			return err
		}
		if len(attachments) == 0 {
			fmt.Println("no active attachments")
			return nil
		}
		for _, a := range attachments {
			fmt.Printf("#%d session=%s path=%s\n", a.ID, a.SessionID, a.RootPath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "memengine.yaml", "Path to the engine's YAML config")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "default", "Session id scoping ingest/recall commands")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level logging")

	rootCmd.AddCommand(attachCmd, syncCmd, ingestCmd, recallCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
