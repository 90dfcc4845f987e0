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

package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetDefaults(t *testing.T) {
	conf := SetDefaults()
	assert.Equal(t, "stdout", conf.Output)
	assert.Equal(t, "INFO", conf.Level)
	assert.Equal(t, "gatekeeper.log", conf.Filename)
	assert.Equal(t, 7, conf.KeepHours)
}

func TestConf_Validate(t *testing.T) {
	tests := []struct {
		name    string
		conf    *Conf
		wantErr bool
	}{
		{name: "stdout", conf: &Conf{Output: "stdout", Level: "INFO"}},
		{name: "file with rotation", conf: &Conf{Output: "file", Path: "/tmp/gk-logs", KeepHours: 3, RotateSize: 10, RotateNum: 2}},
		{name: "file without path", conf: &Conf{Output: "file"}, wantErr: true},
		{name: "file rotation filled in", conf: &Conf{Output: "file", Path: "/tmp/gk-logs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conf.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.conf.Output == "file" {
				assert.Positive(t, tt.conf.RotateSize)
				assert.Positive(t, tt.conf.RotateNum)
				assert.Positive(t, tt.conf.KeepHours)
			}
		})
	}
}

func TestNewLog_File(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLog(&Conf{
		Output:     "file",
		Path:       dir,
		Filename:   "access.log",
		Level:      "INFO",
		KeepHours:  1,
		RotateSize: 1,
		RotateNum:  1,
	})
	require.NoError(t, err)

	logger.Info("invite issued")
	_ = logger.Sync()

	content, err := os.ReadFile(filepath.Join(dir, "access.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "invite issued")
}

func TestGlobalHelpers_LazyInit(t *testing.T) {
	mu.Lock()
	sugar = nil
	logger = nil
	mu.Unlock()
	once = sync.Once{}

	Infow("join approved", "platformUserId", 42)
	Warnw("revocation retried", "entitlementId", "ent_1")

	mu.RLock()
	defer mu.RUnlock()
	assert.NotNil(t, sugar)
}

func TestConcurrentLogging(t *testing.T) {
	MustInit(SetDefaults())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			Debugw("timer fired", "n", n)
			With("component", "scheduler").Infow("tick", "n", n)
		}(i)
	}
	wg.Wait()
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{" warn ", zapcore.WarnLevel},
		{"WARNING", zapcore.WarnLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"FATAL", zapcore.FatalLevel},
		{"bogus", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.input), tt.input)
	}
}
