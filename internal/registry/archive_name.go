package registry

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ArchiveInfo is the identity carried by an inbound archive's file name.
type ArchiveInfo struct {
	Name   string // base name with extension
	Client string // zero-stripped client id
	Branch string
	Stamp  string // export date remainder, kept verbatim
}

// ParseArchiveName splits "<CCCC><BB><stamp>.zip" into its parts.
//
// Edge cases:
//   - Client id has its left zeros stripped; "0000" becomes "0".
//   - The branch keeps its zeros ("05").
//
// Errors:
//   - names whose stem is shorter than six characters.
func ParseArchiveName(name string) (ArchiveInfo, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if len(stem) < 6 {
		return ArchiveInfo{}, fmt.Errorf("archive name %q: want at least 6 characters before the extension", base)
	}

	client := strings.TrimLeft(stem[:4], "0")
	if client == "" {
		client = "0"
	}
	return ArchiveInfo{
		Name:   base,
		Client: client,
		Branch: stem[4:6],
		Stamp:  stem[6:],
	}, nil
}
