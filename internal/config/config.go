/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package config turns CLI flags and the modgraph.yaml config file into
// compiler options.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/modgraph/compiler"
	"bennypowers.dev/modgraph/entry"
)

// FileName is the config file looked up in the context directory, without
// extension. Any format viper reads is accepted.
const FileName = "modgraph"

// AddCompilerFlags registers the flags shared by every command that builds,
// and binds them to viper so the config file can provide defaults.
func AddCompilerFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringArrayP("entry", "e", nil, "Entry as request or name=request; globs and HTML files expand (can be repeated)")
	flags.StringSlice("extensions", nil, "Extensions probed for extensionless requests")
	flags.StringArray("alias", nil, "Alias as from=to (can be repeated)")
	flags.StringSlice("conditions", nil, "Export condition priority (e.g., browser,import,default)")
	flags.StringSlice("main-fields", nil, "package.json fields tried for package entry points")
	flags.StringSlice("externals", nil, "Requests left to the runtime")
	flags.Bool("workspaces", true, "Resolve workspace packages from the root package.json")
	flags.Bool("bail", false, "Abort on the first resolution error")
	flags.Bool("lazy", false, "Leave dynamic imports unresolved")
	flags.Int("parallelism", 0, "Maximum concurrent resolutions and builds (0 is unbounded)")
	flags.Int("cache-size", 0, "Build cache size (0 uses the default, negative disables)")
	flags.Bool("unsafe-cache", false, "Replay cached builds of node_modules without rebuilding")

	for _, name := range []string{
		"entry", "extensions", "alias", "conditions", "main-fields", "externals",
		"workspaces", "bail", "lazy", "parallelism", "cache-size", "unsafe-cache",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// ReadFile reads the config file. An explicit path must exist; otherwise
// modgraph.* in dir is read when present.
func ReadFile(path, dir string) error {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName(FileName)
		viper.AddConfigPath(dir)
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// ContextDir returns the absolute context directory.
func ContextDir() (string, error) {
	abs, err := filepath.Abs(viper.GetString("context"))
	if err != nil {
		return "", fmt.Errorf("invalid context directory: %w", err)
	}
	return abs, nil
}

// CompilerOptions assembles compiler options from viper. Entries passed as
// arguments are added to the configured ones.
func CompilerOptions(args []string) (compiler.Options, error) {
	dir, err := ContextDir()
	if err != nil {
		return compiler.Options{}, err
	}

	entries, err := entry.ParseAll(append(viper.GetStringSlice("entry"), args...))
	if err != nil {
		return compiler.Options{}, fmt.Errorf("invalid entry: %w", err)
	}
	alias, err := ParseAlias(viper.GetStringSlice("alias"))
	if err != nil {
		return compiler.Options{}, err
	}
	// Relative alias targets are taken from the context directory, not
	// from the importing module.
	for from, to := range alias {
		if strings.HasPrefix(to, "./") || strings.HasPrefix(to, "../") {
			alias[from] = filepath.Join(dir, to)
		}
	}

	return compiler.Options{
		Context:            dir,
		Entries:            entries,
		Extensions:         viper.GetStringSlice("extensions"),
		Alias:              alias,
		Conditions:         viper.GetStringSlice("conditions"),
		MainFields:         viper.GetStringSlice("main-fields"),
		Externals:          viper.GetStringSlice("externals"),
		Workspaces:         viper.GetBool("workspaces"),
		Bail:               viper.GetBool("bail"),
		LazyDynamicImports: viper.GetBool("lazy"),
		Parallelism:        viper.GetInt("parallelism"),
		CacheSize:          viper.GetInt("cache-size"),
		UnsafeCache:        viper.GetBool("unsafe-cache"),
	}, nil
}

// ParseAlias parses from=to pairs.
func ParseAlias(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	alias := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		from, to, ok := strings.Cut(pair, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid alias %q: expected from=to", pair)
		}
		alias[from] = to
	}
	return alias, nil
}
