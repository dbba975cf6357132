package plugin

import (
	"testing"

	"go.uber.org/zap"
)

func newTestPlugin(name string, sites ...string) *Plugin {
	return &Plugin{
		Manifest: &Manifest{
			Name:  name,
			Sites: sites,
			dir:   "/tmp/test",
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	logger := zap.NewNop()
	registry := NewRegistry(logger)

	err := registry.Register(newTestPlugin("test-plugin", "example.com"))
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if registry.Count() != 1 {
		t.Errorf("expected count 1, got %d", registry.Count())
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	logger := zap.NewNop()
	registry := NewRegistry(logger)

	if err := registry.Register(newTestPlugin("test-plugin", "example.com")); err != nil {
		t.Fatalf("First Register() failed: %v", err)
	}

	err := registry.Register(newTestPlugin("test-plugin", "other.com"))
	if err == nil {
		t.Fatal("Register() should fail for duplicate plugin")
	}

	_, ok := err.(*PluginAlreadyRegisteredError)
	if !ok {
		t.Errorf("expected PluginAlreadyRegisteredError, got %T", err)
	}

	// The rejected plugin's sites must not leak into the index.
	if got := registry.LookupBySite("other.com"); len(got) != 0 {
		t.Errorf("expected no plugins for other.com, got %d", len(got))
	}
}

func TestRegistry_Get(t *testing.T) {
	logger := zap.NewNop()
	registry := NewRegistry(logger)

	if _, ok := registry.Get("test-plugin"); ok {
		t.Error("Get() should return false for non-existent plugin")
	}

	p := newTestPlugin("test-plugin", "example.com")
	if err := registry.Register(p); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	retrieved, ok := registry.Get("test-plugin")
	if !ok {
		t.Fatal("Get() should return true for registered plugin")
	}

	if retrieved != p {
		t.Error("Get() returned different plugin")
	}
}

func TestRegistry_LookupBySite(t *testing.T) {
	logger := zap.NewNop()
	registry := NewRegistry(logger)

	generic := newTestPlugin("generic", "example.com")
	specific := newTestPlugin("specific", "manga.example.com")
	if err := registry.Register(generic); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := registry.Register(specific); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	tests := []struct {
		host string
		want string
	}{
		{"example.com", "generic"},
		{"www.example.com", "generic"},
		{"EXAMPLE.COM", "generic"},
		{"example.com:8080", "generic"},
		{"example.com.", "generic"},
		{"manga.example.com", "specific"},
		{"cdn.manga.example.com", "specific"},
		{"unknown.org", ""},
		{"com", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			plugins := registry.LookupBySite(tt.host)
			if plugins == nil {
				t.Fatal("LookupBySite() should never return nil")
			}

			if tt.want == "" {
				if len(plugins) != 0 {
					t.Errorf("expected no plugins, got %d", len(plugins))
				}
				return
			}

			if len(plugins) != 1 {
				t.Fatalf("expected 1 plugin, got %d", len(plugins))
			}
			if plugins[0].Name() != tt.want {
				t.Errorf("expected '%s', got '%s'", tt.want, plugins[0].Name())
			}
		})
	}
}

func TestRegistry_LookupBySite_MultiplePlugins(t *testing.T) {
	logger := zap.NewNop()
	registry := NewRegistry(logger)

	first := newTestPlugin("first", "example.com")
	second := newTestPlugin("second", "example.com")
	if err := registry.Register(first); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := registry.Register(second); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	plugins := registry.LookupBySite("example.com")
	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}

	if plugins[0] != first || plugins[1] != second {
		t.Error("expected plugins in registration order")
	}

	// Mutating the result must not affect the registry.
	plugins[0] = nil
	if registry.LookupBySite("example.com")[0] != first {
		t.Error("LookupBySite() should return a copy")
	}
}

func TestRegistry_List(t *testing.T) {
	logger := zap.NewNop()
	registry := NewRegistry(logger)

	if len(registry.List()) != 0 {
		t.Errorf("expected empty list, got %d plugins", len(registry.List()))
	}

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := registry.Register(newTestPlugin(name, name+".com")); err != nil {
			t.Fatalf("Register() failed: %v", err)
		}
	}

	list := registry.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 plugins, got %d", len(list))
	}

	want := []string{"alpha", "mid", "zeta"}
	for i, p := range list {
		if p.Name() != want[i] {
			t.Errorf("List()[%d] = '%s', want '%s'", i, p.Name(), want[i])
		}
	}
}

func TestRegistry_Unregister(t *testing.T) {
	logger := zap.NewNop()
	registry := NewRegistry(logger)

	if err := registry.Register(newTestPlugin("test-plugin", "example.com", "other.org")); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := registry.Register(newTestPlugin("keeper", "example.com")); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	registry.Unregister("test-plugin")

	if registry.Count() != 1 {
		t.Errorf("expected count 1, got %d", registry.Count())
	}

	if _, ok := registry.Get("test-plugin"); ok {
		t.Error("Get() should return false after unregister")
	}

	if got := registry.LookupBySite("other.org"); len(got) != 0 {
		t.Errorf("expected no plugins for other.org, got %d", len(got))
	}

	got := registry.LookupBySite("example.com")
	if len(got) != 1 || got[0].Name() != "keeper" {
		t.Errorf("expected only 'keeper' for example.com, got %v", got)
	}

	// Unregistering an unknown plugin is a no-op.
	registry.Unregister("nonexistent")
	if registry.Count() != 1 {
		t.Errorf("expected count 1, got %d", registry.Count())
	}
}
