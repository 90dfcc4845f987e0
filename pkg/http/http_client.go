// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-resty/resty/v2"
)

// ClientConfig configures an outbound resty client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Debug   bool
}

type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...any) { log.Errorf(format, v...) }
func (restyLogger) Warnf(format string, v ...any)  { log.Warnf(format, v...) }
func (restyLogger) Debugf(format string, v ...any) { log.Debugf(format, v...) }

// NewClient returns a resty client that encodes JSON with sonic and logs via
// zap. Retries are left to callers.
func NewClient(cfg ClientConfig) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetLogger(restyLogger{}).
		SetDebug(cfg.Debug).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "gatekeeper")
	c.JSONMarshal = sonic.Marshal
	c.JSONUnmarshal = sonic.Unmarshal
	return c
}
