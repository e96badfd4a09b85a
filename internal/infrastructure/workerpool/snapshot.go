package workerpool

import "os"

// Snapshotter is implemented by an ExecutorFactory whose expensive
// construction state can be captured once and handed to every forked child,
// instead of repeating the expensive step cold in each one. This is the
// Go-native replacement for copy-on-write fork inheritance (SPEC_FULL.md
// §2): Go cannot safely fork a live multi-threaded runtime, so the
// supervisor asks the factory to serialize whatever it would otherwise
// redo per child, writes that once to a warm temp file, and every child
// reconstructs from it via SnapshotAwareFactory.CreateFromSnapshot. A
// factory that does not implement this still works under
// PreloadedForkManager, it just gets no speed-up over cold-spawning.
type Snapshotter interface {
	ExecutorFactory
	Snapshot() ([]byte, error)
}

// warmSnapshotDir prefers tmpfs so the "warm" half of warm snapshot is
// literal: every child's read is served from memory, never disk.
func warmSnapshotDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// writeWarmSnapshot persists data to a private temp file and returns its
// path. The caller owns cleanup via removeWarmSnapshot.
func writeWarmSnapshot(data []byte) (string, error) {
	f, err := os.CreateTemp(warmSnapshotDir(), "linepool-snapshot-*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := f.Chmod(0o600); err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func removeWarmSnapshot(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
