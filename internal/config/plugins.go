package config

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tigertag/tigertag-server/internal/errors"
)

// PluginKind is the family a configured plugin belongs to. It is also the
// environment variable prefix for the plugin's settings.
type PluginKind string

// Plugin kinds.
const (
	KindEngine   PluginKind = "ENGINE"
	KindScanner  PluginKind = "SCANNER"
	KindStasher  PluginKind = "STASHER"
	KindNotifier PluginKind = "NOTIFIER"
)

// PluginConfig is one plugin block collected from the environment, e.g.
//
//	ENGINE_IMAGGA_NAME=imagga
//	ENGINE_IMAGGA_ENABLED=true
//	ENGINE_IMAGGA_PREFIX=imga
//	ENGINE_IMAGGA_API_KEY=...
type PluginConfig struct {
	Kind    PluginKind
	ID      string            // IMAGGA
	Name    string            // Capability key used to pick the implementation, e.g. "imagga"
	Enabled bool              // Defaults to false
	Props   map[string]string // Every other <KIND>_<ID>_* variable, keyed without the prefix
}

var pluginNamePattern = regexp.MustCompile(`^(ENGINE|SCANNER|STASHER|NOTIFIER)_([A-Z0-9]+)_NAME$`)

// reservedProps are consumed by PluginConfig itself.
var reservedProps = map[string]bool{"NAME": true, "ENABLED": true}

// ParsePlugins collects every plugin block from environ (KEY=value pairs).
// Plugins are returned ordered by kind, then ID, which is also the engine
// registration order.
func ParsePlugins(environ []string) []PluginConfig {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	var plugins []PluginConfig
	for key, value := range vars {
		m := pluginNamePattern.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		p := PluginConfig{
			Kind:  PluginKind(m[1]),
			ID:    m[2],
			Name:  strings.ToLower(strings.TrimSpace(value)),
			Props: make(map[string]string),
		}
		prefix := m[1] + "_" + m[2] + "_"
		p.Enabled = parseBool(vars[prefix+"ENABLED"])

		for k, v := range vars {
			prop, ok := strings.CutPrefix(k, prefix)
			if !ok || prop == "" || reservedProps[prop] {
				continue
			}
			p.Props[prop] = v
		}
		plugins = append(plugins, p)
	}

	sort.Slice(plugins, func(i, j int) bool {
		if plugins[i].Kind != plugins[j].Kind {
			return plugins[i].Kind < plugins[j].Kind
		}
		return plugins[i].ID < plugins[j].ID
	})
	return plugins
}

// Validate checks the block is usable at all; implementation specific props
// are checked by the factory that builds the plugin.
func (p PluginConfig) Validate() error {
	if p.Name == "" {
		return errors.Configurationf("the %s %s plugin has an empty NAME", p.Kind, p.ID)
	}
	return nil
}

// Key is the environment variable prefix of the plugin, e.g. ENGINE_IMAGGA.
func (p PluginConfig) Key() string {
	return string(p.Kind) + "_" + p.ID
}

// Prop returns a required property. A missing or empty value is a
// configuration error naming the plugin.
func (p PluginConfig) Prop(name string) (string, error) {
	if v, ok := p.Props[name]; ok && v != "" {
		return v, nil
	}
	return "", errors.Configurationf("the %s property has not been set for the %s plugin (%s_%s)",
		name, p.ID, p.Key(), name)
}

// PropOr returns an optional property or def when unset.
func (p PluginConfig) PropOr(name, def string) string {
	if v, ok := p.Props[name]; ok && v != "" {
		return v
	}
	return def
}

// IntProp returns an integer property or def when unset.
func (p PluginConfig) IntProp(name string, def int) (int, error) {
	v := p.PropOr(name, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Configurationf("the %s property of the %s plugin must be an integer, got %q", name, p.ID, v)
	}
	return n, nil
}

// DurationProp returns a duration property or def when unset. Bare numbers
// are read as seconds.
func (p PluginConfig) DurationProp(name string, def time.Duration) (time.Duration, error) {
	v := p.PropOr(name, "")
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Configurationf("the %s property of the %s plugin must be a duration, got %q", name, p.ID, v)
	}
	return d, nil
}

// BoolProp returns a boolean property or def when unset.
func (p PluginConfig) BoolProp(name string, def bool) bool {
	v := p.PropOr(name, "")
	if v == "" {
		return def
	}
	return parseBool(v)
}
