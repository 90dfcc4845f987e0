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
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultFilename = "gatekeeper.log"

// getFileLogWriter returns a rotating file WriteSyncer.
func getFileLogWriter(conf *Conf) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(conf.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", conf.Path, err)
	}

	name := conf.Filename
	if name == "" {
		name = defaultFilename
	}

	lumberJackLogger := &lumberjack.Logger{
		Filename:   filepath.Join(conf.Path, name),
		MaxSize:    conf.RotateSize,
		MaxBackups: conf.RotateNum,
		MaxAge:     conf.KeepHours,
		Compress:   true,
	}

	// lumberjack opens lazily; touch the file so the path is visible right away
	if _, err := lumberJackLogger.Write(nil); err != nil {
		return nil, err
	}
	return zapcore.AddSync(lumberJackLogger), nil
}
