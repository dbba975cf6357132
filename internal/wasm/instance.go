package wasm

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/woxQAQ/readerscan/pkg/protocol"
	"go.uber.org/zap"
)

// ExportNames names the guest functions implementing the parser ABI.
type ExportNames struct {
	Alloc   string
	Dealloc string
	Extract string
}

// DefaultExportNames returns the names defined by pkg/protocol.
func DefaultExportNames() ExportNames {
	return ExportNames{
		Alloc:   protocol.ExportAlloc,
		Dealloc: protocol.ExportDealloc,
		Extract: protocol.ExportExtract,
	}
}

// WithDefaults fills empty names from DefaultExportNames.
func (n ExportNames) WithDefaults() ExportNames {
	d := DefaultExportNames()
	if n.Alloc == "" {
		n.Alloc = d.Alloc
	}
	if n.Dealloc == "" {
		n.Dealloc = d.Dealloc
	}
	if n.Extract == "" {
		n.Extract = d.Extract
	}
	return n
}

// List returns the names in alloc, dealloc, extract order.
func (n ExportNames) List() []string {
	return []string{n.Alloc, n.Dealloc, n.Extract}
}

// InstanceManager creates and manages module instances.
type InstanceManager struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (generated if empty).
	InstanceID string

	// Guest export names; empty fields use the protocol defaults.
	Exports ExportNames
}

// Instance is an instantiated parser guest.
//
// A Wasm instance executes one call at a time; callers that share an
// Instance must serialize access (Extractor does).
type Instance struct {
	module  api.Module
	runtime *Runtime

	ID   string
	Name string

	names   ExportNames
	exports map[string]api.Function
}

// Instantiate creates a new instance from a compiled module and runs its
// reactor initializer.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	if limit := m.runtime.config.MaxInstances; limit > 0 && m.runtime.InstanceCount() >= limit {
		return nil, &InstanceLimitError{ModuleName: config.ModuleName, Limit: limit}
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = generateInstanceID()
	}
	names := config.Exports.WithDefaults()

	m.logger.Debug("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	// Go reactors export _initialize, which must run before any other export.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions(protocol.ExportInitialize).
		WithSysWalltime().
		WithSysNanotime()
	if m.runtime.config.DebugEnabled {
		moduleConfig = moduleConfig.WithStderr(os.Stderr)
	}

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	exports, err := lookupExports(config.ModuleName, module, names)
	if err != nil {
		_ = module.Close(ctx)
		return nil, err
	}

	instance := &Instance{
		module:  module,
		runtime: m.runtime,
		ID:      instanceID,
		Name:    config.ModuleName,
		names:   names,
		exports: exports,
	}

	m.runtime.StoreInstance(instanceID, instance)

	m.logger.Debug("Module instantiated",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(exports)),
	)

	return instance, nil
}

// Function returns a cached exported function, or nil.
func (i *Instance) Function(name string) api.Function {
	return i.exports[name]
}

// Memory returns a helper over the instance's linear memory that allocates
// through the guest's own alloc and dealloc exports.
func (i *Instance) Memory() *Memory {
	return newMemory(i.module.Memory(), i.exports[i.names.Alloc], i.exports[i.names.Dealloc])
}

// IsClosed reports whether the guest module has been closed, by Close, by
// an execution timeout or by the guest exiting.
func (i *Instance) IsClosed() bool {
	return i.module.IsClosed()
}

// Close closes the instance and stops tracking it.
func (i *Instance) Close(ctx context.Context) error {
	if i.runtime != nil {
		i.runtime.DeleteInstance(i.ID)
	}
	return i.module.Close(ctx)
}

// lookupExports resolves and caches the parser ABI functions.
func lookupExports(moduleName string, module api.Module, names ExportNames) (map[string]api.Function, error) {
	if module.Memory() == nil {
		return nil, &MemoryAccessError{
			Operation: "export",
			Err:       fmt.Errorf("module %s exports no memory", moduleName),
		}
	}

	exports := make(map[string]api.Function, 3)
	for _, name := range names.List() {
		fn := module.ExportedFunction(name)
		if fn == nil {
			return nil, &FunctionNotFoundError{
				ModuleName:   moduleName,
				FunctionName: name,
			}
		}
		exports[name] = fn
	}
	return exports, nil
}

var instanceSeq atomic.Uint64

// generateInstanceID returns a process-unique instance ID.
func generateInstanceID() string {
	return fmt.Sprintf("inst-%d-%d", time.Now().UnixNano(), instanceSeq.Add(1))
}
