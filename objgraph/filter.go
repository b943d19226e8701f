// ABOUTME: Root-name cleanup and exclusion filtering
// ABOUTME: Exclusion strings are configuration data, loadable from YAML

// Package objgraph collects the tree of live objects reachable from the
// target's GC roots: a deduplicating depth-first traversal over object
// fields, filtered to hide runtime bookkeeping noise.
package objgraph

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// FilterConfig holds the name-cleanup heuristics applied to roots and
// fields. The two-stage algorithm (prefix strip, then dot truncation)
// is fixed behavior; the literal string sets are data, tuned against
// observed runtime output and plausibly version-specific, so they load
// from configuration.
type FilterConfig struct {
	// StaticPrefixes are markers stripped from the front of a root
	// name before any exclusion test.
	StaticPrefixes []string `yaml:"static_prefixes"`

	// ExcludedNamespaces drop any root whose (stripped) name starts
	// with one of these, hiding framework and runtime internals.
	ExcludedNamespaces []string `yaml:"excluded_namespaces"`

	// ExcludedLabels drop handle-bookkeeping pseudo-roots by their
	// runtime-reported labels.
	ExcludedLabels []string `yaml:"excluded_labels"`

	// ExcludedFields drop fields by exact name during expansion.
	ExcludedFields []string `yaml:"excluded_fields"`
}

// DefaultFilterConfig returns the built-in heuristics for current CLR
// output.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		StaticPrefixes: []string{"static var "},
		ExcludedNamespaces: []string{
			"System.",
			"Microsoft.",
			"MS.",
			"Windows.",
			"Interop",
			"<PrivateImplementationDetails>",
		},
		ExcludedLabels: []string{
			"finalization handle",
			"strong handle",
			"pinned handle",
			"async pinned handle",
			"RefCount handle",
			"dependent handle",
			"sizedref handle",
			"local var",
		},
	}
}

// LoadFilterConfig reads a YAML filter configuration.
func LoadFilterConfig(r io.Reader) (*FilterConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := &FilterConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing filter config: %w", err)
	}
	return cfg, nil
}

// CleanRootName applies the two-stage cleanup to a root name. Stage
// one strips a recognized static-variable prefix and tests the result
// against the exclusion lists; stage two collapses a fully qualified
// survivor to its simple name. ok is false when the root should be
// discarded. Applying the filter to its own output changes nothing.
func (c *FilterConfig) CleanRootName(name string) (clean string, ok bool) {
	for _, p := range c.StaticPrefixes {
		if strings.HasPrefix(name, p) {
			name = name[len(p):]
			break
		}
	}
	for _, ns := range c.ExcludedNamespaces {
		if strings.HasPrefix(name, ns) {
			return "", false
		}
	}
	for _, label := range c.ExcludedLabels {
		if strings.HasPrefix(name, label) {
			return "", false
		}
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name, true
}

// ExcludedField reports whether a field name is configured out of
// expansion.
func (c *FilterConfig) ExcludedField(name string) bool {
	for _, f := range c.ExcludedFields {
		if name == f {
			return true
		}
	}
	return false
}
