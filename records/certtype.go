package records

import (
	"sort"
	"strings"
)

// MetaCertificateType is the canonical key; the others are spellings seen in imported data
const MetaCertificateType = "certificate_type"

var certificateTypeKeys = []string{
	MetaCertificateType,
	"certificate-type",
	"certificatetype",
	"cert_type",
	"cert-type",
	"certificate",
	"type",
}

// CertificateType resolves the certificate type of r and the meta key it was found under.
// Known spellings are tried first, then any other key mentioning "certificate" or "type"
// in sorted key order. Returns "", "" when nothing is found.
func CertificateType(r *Record) (string, string) {
	for _, k := range certificateTypeKeys {
		if v := strings.TrimSpace(r.Meta[k]); v != "" {
			return v, k
		}
	}
	keys := make([]string, 0, len(r.Meta))
	for k := range r.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == MetaCertificatePath || k == MetaCertificateURL {
			continue
		}
		lk := strings.ToLower(k)
		if !strings.Contains(lk, "certificate") && !strings.Contains(lk, "type") {
			continue
		}
		if v := strings.TrimSpace(r.Meta[k]); v != "" {
			return v, k
		}
	}
	return "", ""
}

// DefaultFields lists the legacy positional field names of a record kind.
// Slot i of a template without field names binds to the i-th entry.
func DefaultFields(postType string) []string {
	switch postType {
	case TypeTeacher:
		return []string{"teacher_name", "school_name", "issue_date"}
	case TypeSchool:
		return []string{"school_name", "issue_date"}
	default:
		return []string{"student_name", "school_name", "issue_date"}
	}
}

// NameParts are the record fields identifying a document in an archive
func NameParts(r *Record) (string, []string) {
	switch r.PostType {
	case TypeTeacher:
		return r.MetaValue("teacher_name", "title"), []string{r.MetaValue("school_name")}
	case TypeSchool:
		return r.MetaValue("school_name"), nil
	default:
		ct, _ := CertificateType(r)
		return r.MetaValue("student_name"), []string{r.MetaValue("school_name"), ct}
	}
}
