package fsstore

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/clearnote/notesync/internal/models"
)

// LockFileName is the lock record file name at the store root.
const LockFileName = "lock"

// renewalMargin is how far ahead of lock expiry the holder rewrites
// the lock record.
const renewalMargin = 20 * time.Second

// LockInfo is one lock record: a time-boxed, renewable claim of
// exclusive write access.
type LockInfo struct {
	TransactionID string
	ClientID      string
	RenewCount    int
	Duration      time.Duration
	Revision      int
}

// lockXML is the wire form.
type lockXML struct {
	XMLName       xml.Name `xml:"lock"`
	TransactionID string   `xml:"transaction-id"`
	ClientID      string   `xml:"client-id"`
	RenewCount    int      `xml:"renew-count"`
	Duration      string   `xml:"lock-expiration-duration"`
	Revision      int      `xml:"revision"`
}

// HashString is a cheap change detector: any rewrite of the record
// (renewal included) produces a different value. Intentionally not a
// cryptographic hash; readers only compare it for equality.
func (l *LockInfo) HashString() string {
	return fmt.Sprintf("%s-%s-%d-%s-%d",
		l.TransactionID, l.ClientID, l.RenewCount, l.Duration, l.Revision)
}

// readLockFile parses a lock record. Missing or unparsable files
// return a CorruptFileError; callers treat both as "no lock".
func readLockFile(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.CorruptFileError{Path: path, Err: err}
	}

	var doc lockXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &models.CorruptFileError{Path: path, Err: err}
	}

	info := &LockInfo{
		TransactionID: doc.TransactionID,
		ClientID:      doc.ClientID,
		RenewCount:    doc.RenewCount,
		Revision:      doc.Revision,
	}
	if doc.Duration != "" {
		if d, err := time.ParseDuration(doc.Duration); err == nil {
			info.Duration = d
		}
	}
	if info.Duration <= 0 {
		info.Duration = 2 * time.Minute
	}
	return info, nil
}

// writeLockFile rewrites the lock record in place.
func writeLockFile(path string, info *LockInfo) error {
	doc := lockXML{
		TransactionID: info.TransactionID,
		ClientID:      info.ClientID,
		RenewCount:    info.RenewCount,
		Duration:      info.Duration.String(),
		Revision:      info.Revision,
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock record: %w", err)
	}
	data = append([]byte(xml.Header), data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write lock record: %w", err)
	}
	return nil
}
