/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carverauto/cachewarm/pkg/models"
)

const summaryTimestampLayout = "20060102T150405Z"

// writeSummaryFile writes the episode summary as key=value lines to
// results_<timestamp>.log in dir. The key set is stable; external
// tooling greps these files.
func writeSummaryFile(dir string, s *models.Summary) error {
	if dir == "" {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "finished_at_utc=%s\n", s.FinishedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "success=%d\n", s.Success)
	fmt.Fprintf(&b, "timeout=%d\n", s.Timeout)
	fmt.Fprintf(&b, "pending=%d\n", s.Pending)
	fmt.Fprintf(&b, "total=%d\n", s.Total)
	fmt.Fprintf(&b, "force_mode=%t\n", s.ForceMode)
	fmt.Fprintf(&b, "refreshes_triggered=%d\n", s.Refreshes)
	fmt.Fprintf(&b, "new_successes_this_run=%d\n", s.NewSuccesses)
	fmt.Fprintf(&b, "new_failures_this_run=%d\n", s.NewFailures)
	fmt.Fprintf(&b, "checked_this_run=%d\n", s.CheckedThisRun)
	fmt.Fprintf(&b, "run_id=%s\n", s.RunID)

	name := fmt.Sprintf("results_%s.log", s.FinishedAt.UTC().Format(summaryTimestampLayout))

	return os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644)
}
