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

package mcpserver

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
)

// inputSchema reflects a Go request struct into the mcp.ToolInputSchema
// the MCP protocol expects, instead of hand-rolled map literals per tool.
func inputSchema[T any]() mcp.ToolInputSchema {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("mcpserver: reflecting input schema for %T: %v", *new(T), err))
	}

	var out mcp.ToolInputSchema
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("mcpserver: decoding reflected schema for %T: %v", *new(T), err))
	}
	return out
}
