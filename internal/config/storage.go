package config

// StorageConfig configures the relational store and the vector heads layered
// on top of it.
type StorageConfig struct {
	// DatabasePath is the SQLite database file (relational tables and, when
	// built with sqlite_vec, the vec0 virtual tables).
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// VectorDimensions per head, keyed by head name (semantic, code, summary,
	// documents, relationship). The store keeps these values but does not
	// read them: each head's vec0 table is sized from the length of the
	// first embedding written to it, whether or not the head is listed here.
	VectorDimensions map[string]int `yaml:"vector_dimensions" json:"vector_dimensions,omitempty"`

	// OrphanSweepInterval is a period for the background orphan sweeper
	// (storage.RunOrphanSweeper), which reconciles vector rows against their
	// owning relational rows. Nothing in this module reads this field or
	// starts that sweeper; Store.SweepOrphans runs only when called directly.
	OrphanSweepInterval string `yaml:"orphan_sweep_interval" json:"orphan_sweep_interval,omitempty"`
}

// DefaultStorageConfig returns sensible defaults.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DatabasePath: "data/engine.db",
		VectorDimensions: map[string]int{
			"semantic":     768,
			"code":         768,
			"summary":      768,
			"documents":    768,
			"relationship": 768,
		},
		OrphanSweepInterval: "10m",
	}
}

// CacheConfig configures the prompt-cache assembler's content-hash state
// machine.
type CacheConfig struct {
	// TTL is how long a session's cache state is considered warm without any
	// new activity before it is treated as stale (StaleByTTL).
	TTL string `yaml:"ttl" json:"ttl"`
}

// DefaultCacheConfig returns sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: "300s"}
}

// OperationConfig configures the Operation Engine's state machine.
type OperationConfig struct {
	// HardTimeout bounds an entire operation from Understanding through
	// Completed/Failed/Escalating, regardless of how many steps it takes.
	HardTimeout string `yaml:"hard_timeout" json:"hard_timeout"`

	// StepTimeout is a soft, per-plan-step timeout; exceeding it surfaces a
	// ToolCallsFailed escalation reason rather than hard-failing the
	// operation outright.
	StepTimeout string `yaml:"step_timeout" json:"step_timeout"`

	// MaxPlanningAttempts bounds retries of the planning step before
	// escalating with PlanningFailed.
	MaxPlanningAttempts int `yaml:"max_planning_attempts" json:"max_planning_attempts"`

	// MaxToolCallAttempts bounds retries of a single failing tool call
	// before escalating with ToolCallsFailed.
	MaxToolCallAttempts int `yaml:"max_tool_call_attempts" json:"max_tool_call_attempts"`

	// EventBufferSize bounds the typed event channel each operation streams
	// on; a full buffer applies back-pressure to the producer.
	EventBufferSize int `yaml:"event_buffer_size" json:"event_buffer_size"`
}

// DefaultOperationConfig returns sensible defaults.
func DefaultOperationConfig() OperationConfig {
	return OperationConfig{
		HardTimeout:         "5m",
		StepTimeout:         "90s",
		MaxPlanningAttempts: 2,
		MaxToolCallAttempts: 3,
		EventBufferSize:     1024,
	}
}

// CircuitBreakerConfig configures the per-provider availability gate that
// wraps every external LLM/embedding call.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures within Window that trips
	// the breaker from Closed to Open.
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`

	// Window is the rolling duration over which failures are counted.
	Window string `yaml:"window" json:"window"`

	// Cooldown is how long the breaker stays Open before allowing a single
	// HalfOpen probe.
	Cooldown string `yaml:"cooldown" json:"cooldown"`
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		Window:           "5m",
		Cooldown:         "120s",
	}
}
