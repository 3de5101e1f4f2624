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

package registry

import (
	"fmt"
	"sort"

	"github.com/bharat-parihar/ARC-Hawk/connectors/azureblob"
	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/connectors/cassandra"
	"github.com/bharat-parihar/ARC-Hawk/connectors/filesystem"
	"github.com/bharat-parihar/ARC-Hawk/connectors/gcs"
	"github.com/bharat-parihar/ARC-Hawk/connectors/mongodb"
	"github.com/bharat-parihar/ARC-Hawk/connectors/mysql"
	"github.com/bharat-parihar/ARC-Hawk/connectors/postgres"
	"github.com/bharat-parihar/ARC-Hawk/connectors/redis"
	"github.com/bharat-parihar/ARC-Hawk/connectors/s3"
)

// AdapterFactory creates an unconnected adapter for a type name.
type AdapterFactory func(adapterType string) (base.Adapter, error)

var constructors = map[string]func() base.Adapter{
	"filesystem": func() base.Adapter { return filesystem.NewAdapter() },
	"postgres":   func() base.Adapter { return postgres.NewAdapter() },
	"mysql":      func() base.Adapter { return mysql.NewAdapter() },
	"cassandra":  func() base.Adapter { return cassandra.NewAdapter() },
	"mongodb":    func() base.Adapter { return mongodb.NewAdapter() },
	"redis":      func() base.Adapter { return redis.NewAdapter() },
	"s3":         func() base.Adapter { return s3.NewAdapter() },
	"gcs":        func() base.Adapter { return gcs.NewAdapter() },
	"azureblob":  func() base.Adapter { return azureblob.NewAdapter() },
}

// aliases accepted in configuration.
var aliases = map[string]string{
	"file":       "filesystem",
	"postgresql": "postgres",
	"mongo":      "mongodb",
	"azure":      "azureblob",
}

// DefaultFactory builds every adapter shipped with the module.
func DefaultFactory(adapterType string) (base.Adapter, error) {
	if canonical, ok := aliases[adapterType]; ok {
		adapterType = canonical
	}
	ctor, ok := constructors[adapterType]
	if !ok {
		return nil, fmt.Errorf("unsupported adapter type: %s", adapterType)
	}
	return ctor(), nil
}

// Types lists the adapter types DefaultFactory understands.
func Types() []string {
	types := make([]string, 0, len(constructors))
	for t := range constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
