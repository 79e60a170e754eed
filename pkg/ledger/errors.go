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

package ledger

import "errors"

var (
	// ErrLedgerCorrupt is returned when the persisted ledger cannot be
	// parsed into records. The caller decides whether to abort or start fresh.
	ErrLedgerCorrupt = errors.New("ledger file is corrupt")

	// ErrLedgerWrite is returned when the durable store cannot be rewritten.
	// Callers must treat this as run-fatal.
	ErrLedgerWrite = errors.New("ledger write failed")

	// ErrUnknownIdentifier is returned by Commit for an id that was never
	// merged into the ledger.
	ErrUnknownIdentifier = errors.New("unknown identifier")
)
