package ledger

import (
	"os"
	"path/filepath"
	"testing"
)

func FuzzVerifyFile(f *testing.F) {
	// Seed with a valid 3-entry chain
	tmpDir := f.TempDir()
	validPath := filepath.Join(tmpDir, "valid.jsonl")
	l, err := Open(validPath, WithSessionID("sess-fuzz"))
	if err != nil {
		f.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		l.Append(Record{
			Action:  ActionToolCalled,
			AgentID: "coder",
			Input:   "echo hello",
		})
	}
	l.Close()
	validData, _ := os.ReadFile(validPath)
	f.Add(validData)

	// Empty
	f.Add([]byte{})

	// Single garbage line
	f.Add([]byte(`{"not":"a valid entry"}` + "\n"))

	// Totally invalid
	f.Add([]byte(`not json`))

	// Valid JSON with surprising value types
	f.Add([]byte(`{"timestamp":1,"action":{},"sequence_num":"x","entry_hash":[]}` + "\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		tmpFile := filepath.Join(t.TempDir(), "fuzz.jsonl")
		os.WriteFile(tmpFile, data, 0644)

		// Must not panic
		VerifyFile(tmpFile)
	})
}
