package archive

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/zeptools/gw-certs/certs"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomID - lowercase alphanumeric nanoid of n chars
func randomID(n int) string {
	return gonanoid.MustGenerate(idAlphabet, n)
}

// StagingDirName is temp_certificates_<unix>_<nanoid8>
func StagingDirName(now time.Time) string {
	return fmt.Sprintf("temp_certificates_%d_%s", now.Unix(), randomID(8))
}

// ArchiveName is certificates_<requester_hash[:12]>_<unix>_<nanoid6>.zip
func ArchiveName(requesterHash string, now time.Time) string {
	if len(requesterHash) > 12 {
		requesterHash = requesterHash[:12]
	}
	return fmt.Sprintf("certificates_%s_%d_%s.zip", requesterHash, now.Unix(), randomID(6))
}

// EntryName names a record's document inside an archive:
// slug(display name + name parts)-<blake2b(record id + parts)[:8 hex]>-<unix>.pdf
// The hash keeps records with identical names apart.
func EntryName(r certs.RenderResult, now time.Time) string {
	words := append([]string{r.DisplayName}, r.NameParts...)
	base := slug.Make(strings.Join(words, " "))
	if base == "" {
		base = "certificate"
	}
	sum := blake2b.Sum256([]byte(r.RecordID + "\x00" + strings.Join(r.NameParts, "\x00")))
	return fmt.Sprintf("%s-%s-%d.pdf", base, hex.EncodeToString(sum[:4]), now.Unix())
}

// uniqueName appends -2, -3, ... before the extension until name is unused
func uniqueName(name string, used map[string]bool) string {
	if !used[name] {
		used[name] = true
		return name
	}
	stem, ext := strings.TrimSuffix(name, ".pdf"), ".pdf"
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}
