package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lotto.log")
	l := Init("lotto-test", path, false, 1)
	defer l.Close()

	l.Infof("round %d created", 7)

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected the log file to exist, but got %v", err)
	}
	if !strings.Contains(string(b), "round 7 created") {
		t.Errorf("Expected the record in the log file, but got %q", b)
	}
}
