// Copyright 2025 Arogya Assistant Project
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

package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ControllerPerSession(t *testing.T) {
	manager := NewManager(WithInterval(time.Millisecond))

	first := manager.Controller("session-a")
	again := manager.Controller("session-a")
	other := manager.Controller("session-b")

	assert.Same(t, first, again)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, manager.Len())

	found, ok := manager.Lookup("session-b")
	assert.True(t, ok)
	assert.Same(t, other, found)

	_, ok = manager.Lookup("missing")
	assert.False(t, ok)
}

func TestManager_RemoveCancelsActiveRun(t *testing.T) {
	manager := NewManager()
	controller := manager.Controller("session")
	started := make(chan struct{})
	result := make(chan error, 1)

	go func() {
		result <- controller.Start(context.Background(), func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	<-started

	manager.Remove("session")

	select {
	case err := <-result:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("run was not cancelled")
	}
	assert.Equal(t, 0, manager.Len())
}

func TestManager_CleanupIdle(t *testing.T) {
	manager := NewManager()
	manager.Controller("old")

	time.Sleep(20 * time.Millisecond)
	manager.Controller("fresh")

	removed := manager.CleanupIdle(10 * time.Millisecond)

	assert.Equal(t, 1, removed)
	_, ok := manager.Lookup("old")
	assert.False(t, ok)
	_, ok = manager.Lookup("fresh")
	assert.True(t, ok)
}
