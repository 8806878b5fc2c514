package revcache

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// ValidateMode controls how hard the store looks at blobs before
// trusting them.
type ValidateMode int

const (
	// ValidateOn checks blobs as they are read and written.
	ValidateOn ValidateMode = iota
	// ValidateStrict additionally checks content on presence probes.
	ValidateStrict
	// ValidateOff trusts the disk.
	ValidateOff
)

// ParseValidateMode maps a config string to a mode.  Anything
// unrecognized falls back to "on".
func ParseValidateMode(s string) ValidateMode {
	switch s {
	case "off":
		return ValidateOff
	case "strict":
		return ValidateStrict
	default:
		return ValidateOn
	}
}

func (m ValidateMode) String() string {
	switch m {
	case ValidateOff:
		return "off"
	case ValidateStrict:
		return "strict"
	default:
		return "on"
	}
}

// logCorrupt appends one line to the corruption log, if one is
// configured.  The format is stable; fleet tooling greps for it.
func (s *Store) logCorrupt(path, action string) {
	if s.corrupt == nil {
		return
	}
	fmt.Fprintf(s.corrupt, "corrupt %s during %s\n", path, action)
}

// quarantine renames a bad blob out of the namespace so the next
// lookup refetches instead of tripping over it again.  Best-effort: a
// concurrent process may have quarantined or deleted it already.
func (s *Store) quarantine(path string) {
	if err := os.Rename(path, path+".corrupt"); err != nil {
		log.Warnf("unable to quarantine %s: %v", path, err)
	}
}

// validateFile reads the blob at path and checks the record framing
// and the trailing fingerprint.  On failure the corruption is logged
// under the given action ("read", "write", "contains") and the file
// is quarantined.  Unreadable files fail validation without the
// quarantine step.
func (s *Store) validateFile(path, action string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if validData(data, path) {
		return true
	}
	s.logCorrupt(path, action)
	s.quarantine(path)
	return false
}
