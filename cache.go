package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const HASH_SUFFIX = ".hash"

// metadataHash hashes tool settings and platform that affect the emitted IR,
// so a tool upgrade invalidates cached kernels.
func metadataHash(h hash.Hash) {
	h.Write([]byte(Version))
	h.Write([]byte(runtime.GOOS))
	h.Write([]byte(runtime.GOARCH))
}

func irHash(ir string) string {
	h := sha256.New()
	metadataHash(h)
	h.Write([]byte(ir))
	return hex.EncodeToString(h.Sum(nil))
}

// writeKernelIR stores ir as <outDir>/<name>.ll with a sibling .hash file
// acting as completion marker. If the stored hash already matches, the cached
// .ll is reused. A file lock makes concurrent compiles of the same package
// see either a fully written entry or write it themselves.
func writeKernelIR(outDir, name, ir string) (outPath string, cached bool, err error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", false, fmt.Errorf("create cache dir: %w", err)
	}

	// Lock the entire operation
	lock := flock.New(filepath.Join(outDir, ".lock"))
	if err := lock.Lock(); err != nil {
		return "", false, fmt.Errorf("acquire cache lock: %w", err)
	}
	defer lock.Unlock()

	fullHash := irHash(ir)
	llPath := filepath.Join(outDir, name+IR_SUFFIX)
	hashPath := filepath.Join(outDir, name+HASH_SUFFIX)

	if storedHash, err := os.ReadFile(hashPath); err == nil && string(storedHash) == fullHash {
		if _, err := os.Stat(llPath); err == nil {
			return llPath, true, nil
		}
	}

	// Cleanup stale entries (keep 32 most recent, only delete if older than 1 week)
	cleanupStaleIR(outDir, 32, 7*24*60*60)

	if err := os.WriteFile(llPath, []byte(ir), 0644); err != nil {
		return "", false, fmt.Errorf("write IR: %w", err)
	}
	// Store hash after the IR write succeeded (acts as completion marker)
	if err := os.WriteFile(hashPath, []byte(fullHash), 0644); err != nil {
		return "", false, fmt.Errorf("write hash file: %w", err)
	}
	return llPath, false, nil
}

// cleanupStaleIR removes old cached kernel IR files.
// Only deletes entries older than minAge AND keeps at least 'keep' most recent.
// This prevents deleting entries that may still be in use by concurrent processes.
func cleanupStaleIR(outDir string, keep int, minAge int64) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return
	}

	type entryInfo struct {
		name  string
		mtime int64
	}
	var lls []entryInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), IR_SUFFIX) {
			continue
		}
		if info, err := e.Info(); err == nil {
			lls = append(lls, entryInfo{e.Name(), info.ModTime().Unix()})
		}
	}

	if len(lls) <= keep {
		return
	}

	// Sort by mtime ascending (oldest first), remove oldest if older than minAge
	cutoff := time.Now().Unix() - minAge
	sort.Slice(lls, func(i, j int) bool { return lls[i].mtime < lls[j].mtime })
	for i := 0; i < len(lls)-keep; i++ {
		if lls[i].mtime >= cutoff {
			continue
		}
		llPath := filepath.Join(outDir, lls[i].name)
		hashPath := strings.TrimSuffix(llPath, IR_SUFFIX) + HASH_SUFFIX
		if err := os.Remove(llPath); err != nil {
			fmt.Printf("warning: failed to remove stale IR %s: %v\n", llPath, err)
			continue
		}
		os.Remove(hashPath)
	}
}
