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

/*
Package config resolves the configuration and secrets that masking adapters
and policies depend on.

Secrets are addressed by reference strings so that policy files never carry
key material:

	aws-sm://arn:aws:secretsmanager:ap-south-1:123456789012:secret:hawk#tokenize_key
	env://HAWK_TOKENIZE_KEY
	local://hawk#tokenize_key

The fragment after '#' selects a field of a JSON secret. Without it the
"value" field is used, which is where plain-string secrets land.

ExpandEnvVars performs ${VAR}, ${VAR:-default} and $VAR substitution on raw
file content before it is parsed.
*/
package config
