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

// Package build provides the build command for modgraph.
package build

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/modgraph/compiler"
	"bennypowers.dev/modgraph/fs"
	"bennypowers.dev/modgraph/internal/config"
	"bennypowers.dev/modgraph/internal/logging"
	"bennypowers.dev/modgraph/internal/output"
)

// Cmd is the build command, which builds the module graph once and prints
// it.
var Cmd = &cobra.Command{
	Use:   "build [entry...]",
	Short: "Build the module graph",
	Long: `Build the module graph reachable from the entries and print it.

Entries are requests resolved from the context directory, optionally named
with name=request. Globs expand to one entry per file and HTML files
contribute their module scripts.`,
	Example: `  # Print the graph of one entry
  modgraph build ./src/index.js

  # Several named entries, as JSON
  modgraph build main=./src/index.js admin=./src/admin.ts --format json

  # Every page, with browser conditions
  modgraph build './src/pages/**/*.js' --conditions browser,import,default`,
	RunE: run,
}

func init() {
	Cmd.Flags().StringP("format", "f", "text", "Output format (text, json, importmap)")
}

func run(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("error reading format flag: %w", err)
	}
	if err := output.ValidateFormat(format); err != nil {
		return err
	}

	opts, err := config.CompilerOptions(args)
	if err != nil {
		return err
	}
	if len(opts.Entries) == 0 {
		return fmt.Errorf("no entries: pass entries as arguments, with --entry, or in the config file")
	}

	osfs := fs.NewOSFileSystem()
	logger := logging.New(cmd.ErrOrStderr(), viper.GetBool("verbose"))
	c, err := compiler.New(osfs, opts, compiler.WithLogger(logger))
	if err != nil {
		return err
	}
	res, err := c.Build(cmd.Context())
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	var buf bytes.Buffer
	if err := output.Render(&buf, res, opts.Context, format); err != nil {
		return err
	}
	if err := output.Write(osfs, cmd.OutOrStdout(), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	stderr := cmd.ErrOrStderr()
	output.Diagnostics(stderr, res.Diagnostics, opts.Context)
	output.Summary(stderr, res)
	if res.Failed() {
		return fmt.Errorf("build finished with %d errors", res.Stats.Errors)
	}
	return nil
}
