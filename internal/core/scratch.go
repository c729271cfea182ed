package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

const maxAllocateAttempts = 1000

// ScratchAllocator creates one uniquely named directory per job under root so
// that two downloads with the same file name never collide.
type ScratchAllocator struct {
	root    string
	counter atomic.Uint64
	now     func() time.Time
}

func NewScratchAllocator(root string) *ScratchAllocator {
	return &ScratchAllocator{root: root, now: time.Now}
}

func (a *ScratchAllocator) Root() string {
	return a.root
}

// Allocate creates a fresh directory. Allocators sharing a root skip names
// another one already took.
func (a *ScratchAllocator) Allocate() (string, error) {
	if err := os.MkdirAll(a.root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		n := a.counter.Add(1) - 1
		dir := filepath.Join(a.root, fmt.Sprintf("%d_%d", a.now().UnixMilli(), n))
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create scratch directory: %w", err)
		}
	}
	return "", fmt.Errorf("failed to create scratch directory: no free name after %d attempts", maxAllocateAttempts)
}
