// Copyright 2021 IBM Corp.
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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_PrintsKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PROJECT_ID=p\nAPI_KEY=\"AIzaSyTest\"\n"), 0600))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-f", path}, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Equal(t, "AIzaSyTest\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestRun_OtherName(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BACKUP_KEY=AIzaSyBackup\n"), 0600))

	var stdout, stderr bytes.Buffer
	code := run([]string{"--env-file", path, "--name", "BACKUP_KEY"}, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Equal(t, "AIzaSyBackup\n", stdout.String())
}

func TestRun_MissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PROJECT_ID=p\n"), 0600))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-f", path}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "API_KEY")
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"--nope"}, &stdout, &stderr))
}
