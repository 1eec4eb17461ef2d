// Package scripts maps script identifiers of the form <module>.<function> to
// Go functions registered at process start.
package scripts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cuongbtq/bot-runner/internal/domain"
)

// Separator splits the module from the function in an identifier
const Separator = "."

// LogSink records one log line for a job. Implementations are best-effort and
// never fail the caller.
type LogSink func(jobID, level, message, source string)

// ProgressFunc reports script progress for the running job. Best-effort.
type ProgressFunc func(percent int, message string)

// Invocation is everything a script receives
type Invocation struct {
	JobID      string
	Parameters map[string]any
	InputFiles []domain.InputFile
	Log        LogSink
	Progress   ProgressFunc
}

// Script is an invocable unit. The result is stored in its string form;
// pointers are followed and a nil or empty result stores the placeholder.
type Script func(ctx context.Context, inv Invocation) (any, error)

// ResolutionKind tags the outcome of Resolve
type ResolutionKind int

const (
	ResolutionOK ResolutionKind = iota
	ResolutionInvalidIdentifier
	ResolutionModuleNotFound
	ResolutionFunctionNotFound
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionOK:
		return "ok"
	case ResolutionInvalidIdentifier:
		return "invalid_identifier"
	case ResolutionModuleNotFound:
		return "module_not_found"
	case ResolutionFunctionNotFound:
		return "function_not_found"
	default:
		return fmt.Sprintf("ResolutionKind(%d)", int(k))
	}
}

// Resolution is the tagged result of looking up an identifier
type Resolution struct {
	Kind       ResolutionKind
	Identifier string
	Module     string
	Function   string
	Script     Script
	Err        error
}

// Registry holds scripts grouped by module
type Registry struct {
	mu      sync.RWMutex
	modules map[string]map[string]Script
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]map[string]Script)}
}

// ParseIdentifier splits on the last separator. ok is false when either part
// would be empty.
func ParseIdentifier(identifier string) (module, function string, ok bool) {
	idx := strings.LastIndex(identifier, Separator)
	if idx <= 0 || idx == len(identifier)-1 {
		return "", "", false
	}
	return identifier[:idx], identifier[idx+1:], true
}

// Register adds a script. It panics on a malformed or duplicate identifier,
// since registration happens once at startup.
func (r *Registry) Register(identifier string, script Script) {
	module, function, ok := ParseIdentifier(identifier)
	if !ok {
		panic(fmt.Sprintf("scripts: invalid identifier %q", identifier))
	}
	if script == nil {
		panic(fmt.Sprintf("scripts: nil script for %q", identifier))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	functions, exists := r.modules[module]
	if !exists {
		functions = make(map[string]Script)
		r.modules[module] = functions
	}
	if _, dup := functions[function]; dup {
		panic(fmt.Sprintf("scripts: %q registered twice", identifier))
	}
	functions[function] = script
}

// Resolve looks up an identifier. Resolve never attempts a lookup for an
// identifier without a separator.
func (r *Registry) Resolve(identifier string) Resolution {
	res := Resolution{Identifier: identifier}

	module, function, ok := ParseIdentifier(identifier)
	if !ok {
		res.Kind = ResolutionInvalidIdentifier
		res.Err = fmt.Errorf("invalid script_identifier format: %q, expected 'module_name.function_name'", identifier)
		return res
	}
	res.Module, res.Function = module, function

	r.mu.RLock()
	defer r.mu.RUnlock()

	functions, exists := r.modules[module]
	if !exists {
		res.Kind = ResolutionModuleNotFound
		res.Err = fmt.Errorf("no script module named %q", module)
		return res
	}

	script, exists := functions[function]
	if !exists {
		res.Kind = ResolutionFunctionNotFound
		res.Err = fmt.Errorf("module %q has no function %q", module, function)
		return res
	}

	res.Kind = ResolutionOK
	res.Script = script
	return res
}

// Identifiers lists every registered identifier in sorted order
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for module, functions := range r.modules {
		for function := range functions {
			ids = append(ids, module+Separator+function)
		}
	}
	sort.Strings(ids)
	return ids
}
