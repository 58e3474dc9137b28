package blinds

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
)

func fileHasLines(t *testing.T, dir, name string) bool {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return false
	}
	defer f.Close()
	return bufio.NewScanner(f).Scan()
}
