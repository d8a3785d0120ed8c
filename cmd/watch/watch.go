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

// Package watch provides the watch command for modgraph.
package watch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/modgraph/compiler"
	"bennypowers.dev/modgraph/fs"
	"bennypowers.dev/modgraph/internal/config"
	"bennypowers.dev/modgraph/internal/logging"
	"bennypowers.dev/modgraph/internal/output"
	"bennypowers.dev/modgraph/metrics"
	"bennypowers.dev/modgraph/watch"
)

// Cmd is the watch command, which keeps the module graph up to date as
// files change.
var Cmd = &cobra.Command{
	Use:   "watch [entry...]",
	Short: "Rebuild the module graph when files change",
	Long: `Build the module graph, then watch the context directory and repair
the graph incrementally after every batch of changes.

Each pass prints a summary and its diagnostics. With --metrics-addr, build
metrics are served in the Prometheus exposition format at /metrics.`,
	Example: `  modgraph watch ./src/index.js
  modgraph watch --metrics-addr :9464`,
	RunE: run,
}

func init() {
	Cmd.Flags().Duration("debounce", 100*time.Millisecond, "Quiet period before a rebuild")
	Cmd.Flags().StringArray("ignore", nil, "Additional glob patterns to ignore (can be repeated)")
	Cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	Cmd.Flags().Bool("tree", false, "Print the graph after passes that change it")

	_ = viper.BindPFlag("watch.debounce", Cmd.Flags().Lookup("debounce"))
	_ = viper.BindPFlag("watch.ignore", Cmd.Flags().Lookup("ignore"))
	_ = viper.BindPFlag("watch.metrics-addr", Cmd.Flags().Lookup("metrics-addr"))
}

func run(cmd *cobra.Command, args []string) error {
	opts, err := config.CompilerOptions(args)
	if err != nil {
		return err
	}
	if len(opts.Entries) == 0 {
		return fmt.Errorf("no entries: pass entries as arguments, with --entry, or in the config file")
	}
	tree, err := cmd.Flags().GetBool("tree")
	if err != nil {
		return fmt.Errorf("error reading tree flag: %w", err)
	}

	ctx := cmd.Context()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	logger := logging.New(stderr, viper.GetBool("verbose"))
	recorder := metrics.New()

	c, err := compiler.New(fs.NewOSFileSystem(), opts,
		compiler.WithLogger(logger),
		compiler.WithMetrics(recorder),
	)
	if err != nil {
		return err
	}

	report := func(res *compiler.Result) {
		if tree && res.HasModuleGraphChange {
			output.Tree(stdout, res, opts.Context)
		}
		output.Diagnostics(stderr, res.Diagnostics, opts.Context)
		output.Summary(stderr, res)
	}

	res, err := c.Build(ctx)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	report(res)

	if addr := viper.GetString("watch.metrics-addr"); addr != "" {
		stop := serveMetrics(ctx, addr, recorder, logger)
		defer stop()
	}

	w, err := watch.New(watch.Config{
		BaseDir:  opts.Context,
		Ignore:   viper.GetStringSlice("watch.ignore"),
		Debounce: viper.GetDuration("watch.debounce"),
		Logger:   logger,
		OnChange: func(ctx context.Context, changes watch.Changes) error {
			res, err := c.Rebuild(ctx, changes.Modified, changes.Removed)
			if err != nil {
				return err
			}
			report(res)
			return nil
		},
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "watching %s\n", opts.Context)
	return w.Run(ctx)
}

// serveMetrics serves recorder on addr until the returned function is
// called.
func serveMetrics(ctx context.Context, addr string, recorder *metrics.Recorder, logger logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warning("metrics server: %v", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warning("metrics server shutdown: %v", err)
		}
	}
}
