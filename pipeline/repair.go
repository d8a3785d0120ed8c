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

package pipeline

import (
	"context"
	"fmt"

	"bennypowers.dev/modgraph/artifact"
	"bennypowers.dev/modgraph/graph"
	"bennypowers.dev/modgraph/task"
)

// Repair factorizes seeds and everything they lead to, updating c.Artifact
// in place. Seeds whose dependency or issuing module no longer exists are
// skipped. The caller resets the artifact's per-pass data before cutting it,
// so Repair leaves those logs alone.
//
// On error the artifact holds whatever completed main tasks merged. Modules
// and dependencies the pass left half done are marked failed, so the next
// pass retries them.
func Repair(ctx context.Context, c *Context, seeds []artifact.ForceBuildDep) (*artifact.MakeArtifact, error) {
	art := c.Artifact
	mg := art.ModuleGraph
	c.pending = newInflight()

	byOrigin := make(map[graph.ModuleIdentifier][]*graph.Dependency)
	var origins []graph.ModuleIdentifier
	seen := make(map[graph.DependencyID]struct{}, len(seeds))
	for _, s := range seeds {
		if _, dup := seen[s.Dependency]; dup {
			continue
		}
		seen[s.Dependency] = struct{}{}
		dep, ok := mg.Dependency(s.Dependency)
		if !ok {
			continue
		}
		if s.Parent != "" && !mg.HasModule(s.Parent) {
			continue
		}
		if _, ok := byOrigin[s.Parent]; !ok {
			origins = append(origins, s.Parent)
		}
		byOrigin[s.Parent] = append(byOrigin[s.Parent], dep)
	}

	var initial tasks
	for _, origin := range origins {
		initial = append(initial, newFactorizeTasks(c, origin, byOrigin[origin])...)
	}

	c.logger().Debug("repairing module graph from %d seeds (%d factorize tasks)", len(seen), len(initial))

	opts := []task.Option[*Context]{
		task.WithParallelism[*Context](c.Options.Parallelism),
		task.WithLogger[*Context](c.Logger),
	}
	if c.BeforeRun != nil {
		opts = append(opts, task.WithBeforeRun(c.BeforeRun))
	}
	if err := task.Run(ctx, c, initial, opts...); err != nil {
		c.abandon()
		return art, fmt.Errorf("repair module graph: %w", err)
	}
	c.pending = nil

	art.State = artifact.Initialized
	return art, nil
}
