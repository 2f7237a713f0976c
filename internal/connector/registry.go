// Package connector maps connector names to constructors. The CLI and the
// HTTP server resolve connectors by name through one shared registry, so
// adding a vendor means registering its factory here and nothing else.
package connector

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/llm"
	"github.com/cirrushq/cirrus/pkg/tool"
)

// DriveFactory builds an online-drive connector from host credentials.
type DriveFactory func(creds datasource.Credentials, logger *zap.Logger) (datasource.OnlineDrive, error)

// DocumentFactory builds an online-document connector from host credentials.
type DocumentFactory func(creds datasource.Credentials, logger *zap.Logger) (datasource.OnlineDocument, error)

// ProviderFactory builds a tool provider from host credentials.
type ProviderFactory func(creds datasource.Credentials, logger *zap.Logger) (tool.Provider, error)

// AdapterFactory builds a model adapter from host credentials.
type AdapterFactory func(creds datasource.Credentials, logger *zap.Logger) (llm.Adapter, error)

// Registry holds named connector factories of all four kinds.
type Registry struct {
	mu        sync.RWMutex
	drives    map[string]DriveFactory
	documents map[string]DocumentFactory
	providers map[string]ProviderFactory
	adapters  map[string]AdapterFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		drives:    map[string]DriveFactory{},
		documents: map[string]DocumentFactory{},
		providers: map[string]ProviderFactory{},
		adapters:  map[string]AdapterFactory{},
	}
}

// RegisterDrive adds a drive connector under name.
func (r *Registry) RegisterDrive(name string, f DriveFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drives[name] = f
}

// RegisterDocument adds a document connector under name.
func (r *Registry) RegisterDocument(name string, f DocumentFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents[name] = f
}

// RegisterProvider adds a tool provider under name.
func (r *Registry) RegisterProvider(name string, f ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = f
}

// RegisterAdapter adds a model adapter under name.
func (r *Registry) RegisterAdapter(name string, f AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = f
}

// Drive resolves and constructs a drive connector by name.
func (r *Registry) Drive(name string, creds datasource.Credentials, logger *zap.Logger) (datasource.OnlineDrive, error) {
	r.mu.RLock()
	f, ok := r.drives[name]
	r.mu.RUnlock()
	if !ok {
		return nil, datasource.ConfigErrorf("registry", "unknown drive connector %q (available: %v)", name, r.DriveNames())
	}
	return f(creds, logger)
}

// Document resolves and constructs a document connector by name.
func (r *Registry) Document(name string, creds datasource.Credentials, logger *zap.Logger) (datasource.OnlineDocument, error) {
	r.mu.RLock()
	f, ok := r.documents[name]
	r.mu.RUnlock()
	if !ok {
		return nil, datasource.ConfigErrorf("registry", "unknown document connector %q (available: %v)", name, r.DocumentNames())
	}
	return f(creds, logger)
}

// Provider resolves and constructs a tool provider by name.
func (r *Registry) Provider(name string, creds datasource.Credentials, logger *zap.Logger) (tool.Provider, error) {
	r.mu.RLock()
	f, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, datasource.ConfigErrorf("registry", "unknown tool provider %q (available: %v)", name, r.ProviderNames())
	}
	return f(creds, logger)
}

// Adapter resolves and constructs a model adapter by name.
func (r *Registry) Adapter(name string, creds datasource.Credentials, logger *zap.Logger) (llm.Adapter, error) {
	r.mu.RLock()
	f, ok := r.adapters[name]
	r.mu.RUnlock()
	if !ok {
		return nil, datasource.ConfigErrorf("registry", "unknown model adapter %q (available: %v)", name, r.AdapterNames())
	}
	return f(creds, logger)
}

// DriveNames returns the registered drive connector names, sorted.
func (r *Registry) DriveNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.drives)
}

// DocumentNames returns the registered document connector names, sorted.
func (r *Registry) DocumentNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.documents)
}

// ProviderNames returns the registered tool provider names, sorted.
func (r *Registry) ProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.providers)
}

// AdapterNames returns the registered model adapter names, sorted.
func (r *Registry) AdapterNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.adapters)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
