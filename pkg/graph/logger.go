// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
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

package graph

import (
	"github.com/hashicorp/go-retryablehttp"
	klog "k8s.io/klog/v2"
)

// klogLeveledLogger routes retryablehttp output into klog. Per-attempt debug
// chatter only shows up at -v=4.
type klogLeveledLogger struct{}

var _ retryablehttp.LeveledLogger = klogLeveledLogger{}

func (klogLeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	klog.ErrorS(nil, msg, keysAndValues...)
}

func (klogLeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	klog.InfoS("WARN "+msg, keysAndValues...)
}

func (klogLeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	klog.V(2).InfoS(msg, keysAndValues...)
}

func (klogLeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	klog.V(4).InfoS(msg, keysAndValues...)
}
