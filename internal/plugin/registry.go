package plugin

import (
	"net"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Registry manages loaded plugins.
type Registry struct {
	sync.RWMutex
	plugins map[string]*Plugin   // name -> plugin
	bySite  map[string][]*Plugin // site -> plugins
	logger  *zap.Logger
}

// NewRegistry creates a new plugin registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]*Plugin),
		bySite:  make(map[string][]*Plugin),
		logger:  logger.With(zap.String("component", "plugin-registry")),
	}
}

// Register adds a plugin to the registry.
func (r *Registry) Register(p *Plugin) error {
	r.Lock()
	defer r.Unlock()

	name := p.Manifest.Name

	if _, exists := r.plugins[name]; exists {
		return &PluginAlreadyRegisteredError{PluginName: name}
	}

	r.plugins[name] = p

	for _, site := range p.Manifest.Sites {
		site = normalizeHost(site)
		r.bySite[site] = append(r.bySite[site], p)
	}

	r.logger.Info("Plugin registered",
		zap.String("name", name),
		zap.Strings("sites", p.Manifest.Sites),
	)

	return nil
}

// Get retrieves a plugin by name.
func (r *Registry) Get(name string) (*Plugin, bool) {
	r.RLock()
	defer r.RUnlock()

	p, ok := r.plugins[name]
	return p, ok
}

// LookupBySite finds plugins for a host name. A plugin registered for
// "example.com" also serves "www.example.com"; the most specific site wins.
func (r *Registry) LookupBySite(host string) []*Plugin {
	r.RLock()
	defer r.RUnlock()

	for h := normalizeHost(host); h != ""; h = parentDomain(h) {
		if plugins := r.bySite[h]; len(plugins) > 0 {
			result := make([]*Plugin, len(plugins))
			copy(result, plugins)
			return result
		}
	}
	return []*Plugin{}
}

// List returns all registered plugins sorted by name.
func (r *Registry) List() []*Plugin {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Manifest.Name < result[j].Manifest.Name
	})
	return result
}

// Unregister removes a plugin from the registry.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()

	p, ok := r.plugins[name]
	if !ok {
		return
	}

	for _, site := range p.Manifest.Sites {
		site = normalizeHost(site)
		plugins := r.bySite[site]
		for i, candidate := range plugins {
			if candidate.Manifest.Name == name {
				r.bySite[site] = append(plugins[:i], plugins[i+1:]...)
				break
			}
		}
		if len(r.bySite[site]) == 0 {
			delete(r.bySite, site)
		}
	}

	delete(r.plugins, name)

	r.logger.Info("Plugin unregistered", zap.String("name", name))
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.plugins)
}

// normalizeHost lowercases host and strips a port and trailing dot.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

// parentDomain drops the leftmost label; it returns "" for a single label.
func parentDomain(host string) string {
	i := strings.IndexByte(host, '.')
	if i < 0 {
		return ""
	}
	return host[i+1:]
}
