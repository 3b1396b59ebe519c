package config

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

// RenderEffective writes the resolved configuration to w as TOML that Load
// would accept. This powers the "config show" command.
func RenderEffective(r *Resolved, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# Effective configuration (file: %s)\n", displayPath(r.Path)); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	if err := toml.NewEncoder(w).Encode(r.Config); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return nil
}

func displayPath(p string) string {
	if p == "" {
		return "none"
	}

	return p
}
