package dispatch

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// AuditFile appends one tab-separated line per action to a plain text file.
// Writes are best-effort: the durable audit trail is the action log table,
// this file is the operator-greppable copy.
type AuditFile struct {
	path string
	mu   sync.Mutex
}

// NewAuditFile Constructor. An empty path disables the file.
func NewAuditFile(path string) *AuditFile {
	if path == "" {
		return nil
	}
	return &AuditFile{path: path}
}

// Append writes one action line.
func (a *AuditFile) Append(ts time.Time, chatID, userID int64, fullName, mode, reason, action string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("WARN: Failed to open audit file %s: %v", a.path, err)
		return
	}
	defer f.Close()

	line := fmt.Sprintf("%s\tchat=%d\tuser=%d\tname=%s\tmode=%s\taction=%s\treason=%s\n",
		ts.UTC().Format(time.RFC3339), chatID, userID, fullName, mode, action, reason)
	if _, err := f.WriteString(line); err != nil {
		log.Printf("WARN: Failed to write audit line to %s: %v", a.path, err)
	}
}
