// Copyright 2025 AxonFlow
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

// Command hawk serves the ARC-Hawk validation and masking API.
//
// Usage:
//
//	./hawk
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string for the adapter registry and audit log
//	HAWK_POLICY_FILE - Masking policy file (YAML or JSON)
//	HAWK_JWT_SECRET - Secret for JWT bearer token validation
//	HAWK_BACKUP_DIR - Backup directory for the built-in "local" filesystem adapter
//
// See server.LoadRunConfig for the full list.
package main

import (
	"github.com/bharat-parihar/ARC-Hawk/server"
)

func main() {
	server.Run()
}
