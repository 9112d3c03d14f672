// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"

	"github.com/stepflow-dev/stepflow/pkg/config"
	"github.com/stepflow-dev/stepflow/pkg/store"
)

// openStore dials the store described by cfg, without migrating it.
func openStore(cfg *config.Config) (*store.Store, error) {
	switch cfg.Store.Backend {
	case "filesystem":
		return store.Open(store.DialectSQLite, cfg.Store.DBPath)
	default:
		return nil, fmt.Errorf("stepflow: unknown store backend %q", cfg.Store.Backend)
	}
}
