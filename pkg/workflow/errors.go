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

package workflow

import "github.com/stepflow-dev/stepflow/pkg/apperr"

var (
	errDefinitionMissingName     = apperr.New(apperr.KindContent, "workflow definition missing name")
	errDefinitionNoPhases        = apperr.New(apperr.KindContent, "workflow definition has no phases")
	errDefinitionNoFirstPhase    = apperr.New(apperr.KindContent, "workflow definition has no phase eligible to start (every phase has a dependsOn)")
	errDefinitionIncompletePhase = apperr.New(apperr.KindContent, "workflow definition has a phase missing phase or agent name")
	errDefinitionDuplicatePhase  = apperr.New(apperr.KindContent, "workflow definition has duplicate phase names")
)
