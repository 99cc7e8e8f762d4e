// Copyright 2026 The OpenTerm Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package sl032

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Not parallel: the session log is process-global state and the log
// file lands in the working directory.
func TestSessionLog(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	path, err := InitSessionLog()
	require.NoError(t, err)
	assert.Equal(t, path, GetSessionLogPath())

	Debugf("exchange %02X", 0x60)

	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())

	content, err := os.ReadFile(filepath.Join(dir, path))
	require.NoError(t, err)
	assert.Contains(t, string(content), "SL032 Debug Session Log")
	assert.Contains(t, string(content), "exchange 60")
	assert.Contains(t, string(content), "Session ended")
}

func TestSessionLog_CloseWithoutInit(t *testing.T) {
	assert.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())
}
