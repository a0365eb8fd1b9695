// Package engine wires the memory/context-assembly components into one
// runnable service, the way the teacher's AppState owns its kernel,
// executor, and store together.
package engine

import (
	"fmt"

	"memengine/internal/circuitbreaker"
	"memengine/internal/codeindex"
	"memengine/internal/config"
	"memengine/internal/embedding"
	"memengine/internal/logging"
	"memengine/internal/memorypipeline"
	"memengine/internal/operation"
	"memengine/internal/oracle"
	"memengine/internal/promptcache"
	"memengine/internal/recall"
	"memengine/internal/storage"
)

// Engine is the fully wired service: one Store backing a memory pipeline, a
// recall engine, a prompt-cache assembler, a code-index watcher/sync task,
// and an operation engine, all sharing one circuit breaker.
type Engine struct {
	Config *config.Config

	Store     *storage.Store
	Breaker   *circuitbreaker.Breaker
	Pipeline  *memorypipeline.Pipeline
	Recall    *recall.Engine
	Assembler *promptcache.Assembler
	SyncTask  *codeindex.SyncTask
	Watcher   *codeindex.Watcher
	Operation *operation.Engine
}

// New opens storage at cfg's configured path, wires an embedding engine into
// it when one can be constructed, and assembles every other component on
// top. planner, tools, and codegen are supplied by the caller (they depend
// on an LLM client the storage/recall layer has no opinion about); any of
// them may be nil, in which case the returned Operation engine will fail
// fast the first time it needs that collaborator.
func New(cfg *config.Config, planner operation.Planner, tools operation.ToolRunner, codegen operation.CodeGenerator) (*Engine, error) {
	store, err := storage.New(cfg.Storage.DatabasePath, cfg.Storage.VectorDimensions)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	if embedEngine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
	}); err != nil {
		logging.BootWarn("embedding engine unavailable, semantic search degrades to brute-force text match: %v", err)
	} else {
		store.SetEmbeddingEngine(embedEngine)
	}

	breaker := circuitbreaker.New(cfg.Circuit.FailureThreshold, cfg.GetCircuitWindow(), cfg.GetCircuitCooldown())

	pipeline := memorypipeline.New(store, nil)

	codeOracle := oracle.New(store)
	recallEngine := recall.New(store, codeOracle, nil)

	cacheTTL := cfg.GetCacheTTL()
	assembler := promptcache.NewAssembler(cacheTTL)

	syncTask := codeindex.NewSyncTask(store)

	watcher, err := codeindex.NewWatcher(
		cfg.GetWatcherDebounce(),
		cfg.GetWatcherBatchWindow(),
		cfg.GetGitSuppressionWindow(),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("construct watcher: %w", err)
	}

	opEngine := operation.NewEngine(store, planner, tools, codegen, breaker)
	opEngine.SetConfig(operation.Config{
		HardTimeout:         cfg.GetOperationHardTimeout(),
		StepTimeout:         cfg.GetOperationStepTimeout(),
		MaxPlanningAttempts: cfg.Operation.MaxPlanningAttempts,
		MaxToolCallAttempts: cfg.Operation.MaxToolCallAttempts,
		EventBufferSize:     cfg.Operation.EventBufferSize,
	})

	return &Engine{
		Config:    cfg,
		Store:     store,
		Breaker:   breaker,
		Pipeline:  pipeline,
		Recall:    recallEngine,
		Assembler: assembler,
		SyncTask:  syncTask,
		Watcher:   watcher,
		Operation: opEngine,
	}, nil
}

// RewatchActiveAttachments registers every attachment currently marked
// active in storage with the watcher, used at boot to resume watching
// whatever the previous process was watching. It does not start the
// watcher's event loop (Watcher.Start).
func (e *Engine) RewatchActiveAttachments() error {
	attachments, err := e.Store.ListActiveAttachments()
	if err != nil {
		return fmt.Errorf("list active attachments: %w", err)
	}
	for _, a := range attachments {
		if err := e.Watcher.WatchAttachment(a.ID, a.RootPath); err != nil {
			logging.BootWarn("failed to watch attachment %d (%s): %v", a.ID, a.RootPath, err)
			continue
		}
	}
	return nil
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	e.Watcher.Stop()
	return e.Store.Close()
}
