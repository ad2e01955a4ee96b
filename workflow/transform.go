package workflow

import (
	"fmt"
	"strings"

	"github.com/listforge/listforge/pattern"
)

// TransformationError reports a pipeline failure. It aborts only the workflow
// instance that ran the pipeline and is carried in that instance's result.
type TransformationError struct {
	Transform string
	Err       error
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Transform, e.Err)
}

func (e *TransformationError) Unwrap() error {
	return e.Err
}

// Transform is one step of the ordered rule transformation pipeline.
type Transform interface {
	// Name identifies the transform in step records.
	Name() string
	// Apply transforms the rule set, returning the surviving rules.
	Apply(rules []string, cfg *CompileConfig) ([]string, error)
}

// DefaultPipeline is the transformation order applied when the engine is not
// given an explicit pipeline.
func DefaultPipeline() []Transform {
	return []Transform{
		&CompressTransform{},
		&ValidateTransform{},
		&DedupTransform{},
	}
}

// DedupTransform removes exact duplicates using the pattern hash and drops
// rules matching any of the configuration's suppress patterns.
type DedupTransform struct{}

// Name implements Transform.
func (t *DedupTransform) Name() string { return "deduplicate" }

// Apply implements Transform. Hash collisions fall back to an exact string
// comparison so distinct rules are never merged.
func (t *DedupTransform) Apply(rules []string, cfg *CompileConfig) ([]string, error) {
	seen := make(map[uint32][]string, len(rules))
	out := make([]string, 0, len(rules))

next:
	for _, rule := range rules {
		h := pattern.Hash(rule)
		for _, prior := range seen[h] {
			if pattern.Equals(prior, rule) {
				continue next
			}
		}
		if cfg != nil {
			for _, suppress := range cfg.SuppressPatterns {
				if pattern.Matches(suppress, rule) {
					continue next
				}
			}
		}
		seen[h] = append(seen[h], rule)
		out = append(out, rule)
	}
	return out, nil
}

// CompressTransform strips comments, blank lines, and surrounding whitespace.
type CompressTransform struct{}

// Name implements Transform.
func (t *CompressTransform) Name() string { return "compress" }

// Apply implements Transform.
func (t *CompressTransform) Apply(rules []string, _ *CompileConfig) ([]string, error) {
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		rule = strings.TrimSpace(rule)
		if rule == "" || strings.HasPrefix(rule, "!") || strings.HasPrefix(rule, "[") {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

// ValidateTransform drops rules that cannot possibly match anything: bare
// separators, lone wildcards, and fragments shorter than a usable pattern.
type ValidateTransform struct{}

// Name implements Transform.
func (t *ValidateTransform) Name() string { return "validate" }

// Apply implements Transform.
func (t *ValidateTransform) Apply(rules []string, _ *CompileConfig) ([]string, error) {
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		trimmed := strings.Trim(rule, "*^|")
		if len(trimmed) < 3 {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}
