package util

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

// SetRandom points the data directory at a fresh temp dir so tests never
// share state with each other or with a real installation.
func SetRandom() {
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("motionblinds-test-%d", rand.Int63()))
	if err := os.MkdirAll(dir, 0755); err != nil {
		panic(err)
	}
	os.Setenv("MOTIONBLINDS_DIR", dir)
}
