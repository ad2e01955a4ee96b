package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/listforge/listforge/pattern"
)

// GenerateHeader produces the metadata header for a compiled list in adblock
// comment syntax. The checksum is the deterministic pattern hash of the rule
// body, so identical output always carries an identical checksum.
func GenerateHeader(cfg *CompileConfig, rules []string, compiledAt time.Time) []string {
	lines := []string{
		fmt.Sprintf("! Title: %s", cfg.Name),
	}
	if cfg.Description != "" {
		lines = append(lines, fmt.Sprintf("! Description: %s", cfg.Description))
	}
	if cfg.Homepage != "" {
		lines = append(lines, fmt.Sprintf("! Homepage: %s", cfg.Homepage))
	}
	if cfg.Version != "" {
		lines = append(lines, fmt.Sprintf("! Version: %s", cfg.Version))
	}
	lines = append(lines,
		fmt.Sprintf("! Last modified: %s", compiledAt.UTC().Format(time.RFC3339)),
		fmt.Sprintf("! Rule count: %d", len(rules)),
		fmt.Sprintf("! Checksum: %s", RulesChecksum(rules)),
	)
	return lines
}

// RulesChecksum returns a short deterministic checksum over the rule body.
func RulesChecksum(rules []string) string {
	return fmt.Sprintf("%08x", pattern.Hash(strings.Join(rules, "\n")))
}
