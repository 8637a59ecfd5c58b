// Package maintenance implements the offline data-file operations behind
// the memberctl binary: backup, restore, stats, and validate. It works on
// the same JSON document the server persists.
package maintenance

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tongbuying/internal/member"
)

// Stats summarizes the data file for reporting.
type Stats struct {
	Total       int
	Active      int
	Expired     int
	LastUpdated string
}

// Violation describes one failed validation check on one record.
type Violation struct {
	Index   int    // zero-based position in the members array
	Problem string
}

func (v Violation) String() string {
	return fmt.Sprintf("member %d: %s", v.Index+1, v.Problem)
}

// Backup copies the data file to a timestamped sibling and returns the
// backup path.
func Backup(path string) (string, error) {
	ts := time.Now().UTC().Format(time.RFC3339)
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	backupPath := strings.TrimSuffix(path, ".json") + "_backup_" + ts + ".json"

	if err := copyFile(path, backupPath); err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	return backupPath, nil
}

// Restore overwrites the data file from a named backup.
func Restore(path, backupFile string) error {
	if err := copyFile(backupFile, path); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}

// CollectStats reports member counts and the active-vs-expired split. A
// member is active when its expiry date is strictly after now; unparsable
// expiry dates count as expired.
func CollectStats(path string, now time.Time) (*Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}

	var doc member.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse data file: %w", err)
	}

	stats := &Stats{Total: len(doc.Members), LastUpdated: doc.LastUpdated}
	for _, m := range doc.Members {
		if expiryAfter(m.MembershipExpiry, now) {
			stats.Active++
		} else {
			stats.Expired++
		}
	}
	return stats, nil
}

// Validate checks every record for the required fields and sequence-typed
// lists, reporting one violation per failed check. It parses the document
// loosely so that type mismatches are reported instead of failing the whole
// parse.
func Validate(path string) ([]Violation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}

	var doc struct {
		Members []map[string]json.RawMessage `json:"members"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse data file: %w", err)
	}

	var violations []Violation
	for i, m := range doc.Members {
		var id int
		if raw, ok := m["id"]; !ok || json.Unmarshal(raw, &id) != nil || id <= 0 {
			violations = append(violations, Violation{i, "missing or invalid id"})
		}
		var nickname string
		if raw, ok := m["nickname"]; !ok || json.Unmarshal(raw, &nickname) != nil || nickname == "" {
			violations = append(violations, Violation{i, "missing nickname"})
		}
		if !isStringList(m["phones"]) {
			violations = append(violations, Violation{i, "phones is not a list of phone numbers"})
		}
		if !isEntitlementList(m["benefits"]) {
			violations = append(violations, Violation{i, "benefits is not a list"})
		}
		if !isEntitlementList(m["courses"]) {
			violations = append(violations, Violation{i, "courses is not a list"})
		}
	}
	return violations, nil
}

func isStringList(raw json.RawMessage) bool {
	if raw == nil {
		return false
	}
	var v []string
	return json.Unmarshal(raw, &v) == nil && v != nil && len(v) > 0
}

func isEntitlementList(raw json.RawMessage) bool {
	if raw == nil {
		return false
	}
	var v []member.Entitlement
	return json.Unmarshal(raw, &v) == nil && v != nil
}

func expiryAfter(expiry string, now time.Time) bool {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, expiry); err == nil {
			return t.After(now)
		}
	}
	return false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
