package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// ErrInvalidConfig is returned when a config update fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// EngineConfig is the persisted config document: a single JSON object read
// on every request and rewritten wholesale on every accepted update. It is
// shared by ingestion (DataDir) and generation (Engine params).
type EngineConfig struct {
	ModelsDir string       `json:"modelsDir"`
	DataDir   string       `json:"dataDir"`
	Engine    EngineParams `json:"engine"`
}

// EngineParams tune the local generation engine.
type EngineParams struct {
	Threads      int    `json:"threads"`
	GPULayers    int    `json:"gpuLayers"`
	Quantization string `json:"quantization"`
}

// EnginePatch is a partial update to an EngineConfig. Nil fields are left
// unchanged; Engine fields merge individually.
type EnginePatch struct {
	ModelsDir *string            `json:"modelsDir"`
	DataDir   *string            `json:"dataDir"`
	Engine    *EngineParamsPatch `json:"engine"`
}

// EngineParamsPatch is a partial update to EngineParams.
type EngineParamsPatch struct {
	Threads      *int    `json:"threads"`
	GPULayers    *int    `json:"gpuLayers"`
	Quantization *string `json:"quantization"`
}

// Manager owns the config document on disk.
type Manager struct {
	path     string
	dataRoot string
	mu       sync.Mutex
}

// NewManager creates a Manager for config.json under dataRoot.
func NewManager(dataRoot string) *Manager {
	return &Manager{
		path:     filepath.Join(dataRoot, "config.json"),
		dataRoot: dataRoot,
	}
}

func (m *Manager) defaults() EngineConfig {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}
	return EngineConfig{
		ModelsDir: filepath.Join(m.dataRoot, "models"),
		DataDir:   filepath.Join(m.dataRoot, "db"),
		Engine: EngineParams{
			Threads:      threads,
			GPULayers:    0,
			Quantization: "auto",
		},
	}
}

// Get reads the config document from disk, falling back to defaults when the
// file does not exist yet. The referenced directories are created as a side
// effect so callers can rely on them.
func (m *Manager) Get() (EngineConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *Manager) load() (EngineConfig, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		cfg := m.defaults()
		return cfg, m.ensureDirs(cfg)
	}
	if err != nil {
		return EngineConfig{}, fmt.Errorf("reading config: %w", err)
	}

	var cfg EngineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, m.ensureDirs(cfg)
}

// Update applies a patch and rewrites the whole document. Invalid values
// are rejected without mutating the stored config.
func (m *Manager) Update(patch EnginePatch) (EngineConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.load()
	if err != nil {
		return EngineConfig{}, err
	}

	if patch.ModelsDir != nil {
		cfg.ModelsDir = *patch.ModelsDir
	}
	if patch.DataDir != nil {
		cfg.DataDir = *patch.DataDir
	}
	if patch.Engine != nil {
		if patch.Engine.Threads != nil {
			cfg.Engine.Threads = *patch.Engine.Threads
		}
		if patch.Engine.GPULayers != nil {
			cfg.Engine.GPULayers = *patch.Engine.GPULayers
		}
		if patch.Engine.Quantization != nil {
			cfg.Engine.Quantization = *patch.Engine.Quantization
		}
	}

	if err := validate(cfg); err != nil {
		return EngineConfig{}, err
	}
	if err := m.save(cfg); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

func validate(cfg EngineConfig) error {
	if cfg.ModelsDir == "" || cfg.DataDir == "" {
		return fmt.Errorf("%w: modelsDir and dataDir must not be empty", ErrInvalidConfig)
	}
	if cfg.Engine.Threads < 1 {
		return fmt.Errorf("%w: engine.threads must be at least 1", ErrInvalidConfig)
	}
	if cfg.Engine.GPULayers < 0 {
		return fmt.Errorf("%w: engine.gpuLayers must not be negative", ErrInvalidConfig)
	}
	if cfg.Engine.Quantization == "" {
		return fmt.Errorf("%w: engine.quantization must not be empty", ErrInvalidConfig)
	}
	return nil
}

func (m *Manager) save(cfg EngineConfig) error {
	if err := m.ensureDirs(cfg); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (m *Manager) ensureDirs(cfg EngineConfig) error {
	for _, dir := range []string{m.dataRoot, cfg.ModelsDir, cfg.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
