package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderLocksAreIndependent(t *testing.T) {
	locks := newFolderLocks()
	unlockA := locks.lock("a")

	done := make(chan struct{})
	go func() {
		locks.lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("packaging b waited on a")
	}

	acquired := make(chan func())
	go func() { acquired <- locks.lock("a") }()
	select {
	case <-acquired:
		t.Fatal("second lock on a did not wait")
	case <-time.After(50 * time.Millisecond):
	}
	unlockA()
	var unlockAgain func()
	select {
	case unlockAgain = <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("a never released")
	}
	require.Equal(t, 1, locks.held())
	unlockAgain()
	assert.Equal(t, 0, locks.held())
}
