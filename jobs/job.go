package jobs

import (
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/zeptools/gw-certs/certs"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal statuses are never left
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// BatchSize is the number of records per batch
const BatchSize = 10

// Job is the persisted state of one bulk render request
type Job struct {
	ID               string                        `json:"job_id"`
	RequesterHash    string                        `json:"requester_hash"`
	TotalRecords     int                           `json:"total_records"`
	ProcessedRecords int                           `json:"processed_records"`
	TotalBatches     int                           `json:"total_batches"`
	ProcessedBatches int                           `json:"processed_batches"`
	Batches          [][]string                    `json:"batches"`
	DoneBatches      []int                         `json:"done_batches,omitempty"` // sorted
	Status           Status                        `json:"status"`
	Results          map[string]certs.RenderResult `json:"results,omitempty"`
	Errors           []string                      `json:"errors,omitempty"`
	ArchivePath      string                        `json:"archive_path,omitempty"`
	ArchiveName      string                        `json:"archive_name,omitempty"`
	ArchiveURL       string                        `json:"archive_url,omitempty"`
	ArchiveItemCount int                           `json:"archive_item_count"`
	CreatedAt        time.Time                     `json:"created_at"`
	UpdatedAt        time.Time                     `json:"updated_at"`
	CompletedAt      time.Time                     `json:"completed_at,omitzero"`
	Version          int64                         `json:"version"`
}

// New builds a pending job over recordIDs, already deduplicated
func New(id string, requesterHash string, recordIDs []string, now time.Time) *Job {
	batches := Chunk(recordIDs, BatchSize)
	return &Job{
		ID:            id,
		RequesterHash: requesterHash,
		TotalRecords:  len(recordIDs),
		TotalBatches:  len(batches),
		Batches:       batches,
		Status:        StatusPending,
		Results:       make(map[string]certs.RenderResult),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (j *Job) BatchDone(i int) bool {
	_, found := slices.BinarySearch(j.DoneBatches, i)
	return found
}

// MarkBatchDone counts batch i once. Returns false if it was already counted.
func (j *Job) MarkBatchDone(i int) bool {
	pos, found := slices.BinarySearch(j.DoneBatches, i)
	if found {
		return false
	}
	j.DoneBatches = slices.Insert(j.DoneBatches, pos, i)
	if i >= 0 && i < len(j.Batches) {
		j.ProcessedRecords += len(j.Batches[i])
	}
	j.ProcessedBatches++
	return true
}

// UndoneBatches lists batch indexes not yet counted
func (j *Job) UndoneBatches() []int {
	var out []int
	for i := range j.Batches {
		if !j.BatchDone(i) {
			out = append(out, i)
		}
	}
	return out
}

// FullyProcessed - every batch ran; the job still needs finalizing if not completed
func (j *Job) FullyProcessed() bool {
	return j.ProcessedBatches >= j.TotalBatches
}

// AddResult records a per-record outcome and its error line, if any
func (j *Job) AddResult(r certs.RenderResult) {
	if j.Results == nil {
		j.Results = make(map[string]certs.RenderResult)
	}
	j.Results[r.RecordID] = r
	if line := r.ErrorLine(); line != "" {
		j.Errors = append(j.Errors, line)
	}
}

func (j *Job) HasResult(recordID string) bool {
	_, ok := j.Results[recordID]
	return ok
}

// SuccessfulResults are the results with a document, ordered by record id
func (j *Job) SuccessfulResults() []certs.RenderResult {
	out := make([]certs.RenderResult, 0, len(j.Results))
	for _, r := range j.Results {
		if r.OK() {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b certs.RenderResult) int {
		return CompareRecordIDs(a.RecordID, b.RecordID)
	})
	return out
}

// CompareRecordIDs orders numeric ids numerically, then anything else lexically
func CompareRecordIDs(a, b string) int {
	if len(a) != len(b) && isDigits(a) && isDigits(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Chunk splits ids into consecutive batches of size; the last one holds the remainder
func Chunk(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, slices.Clone(ids[start:end]))
	}
	return out
}

// RequesterHash is the hex blake2b-256 of a requester key (e.g. an email address)
func RequesterHash(requesterKey string) string {
	sum := blake2b.Sum256([]byte(strings.ToLower(strings.TrimSpace(requesterKey))))
	return hex.EncodeToString(sum[:])
}

// NewID returns cert_job_<hash[:16]>_<unix>_<uuid[:8]>
func NewID(requesterHash string, now time.Time) string {
	h := requesterHash
	if len(h) > 16 {
		h = h[:16]
	}
	return fmt.Sprintf("cert_job_%s_%d_%s", h, now.Unix(), uuid.NewString()[:8])
}

// Progress is the externally visible view of a job
type Progress struct {
	JobID            string   `json:"job_id"`
	Status           Status   `json:"status"`
	Processed        int      `json:"processed"`
	Total            int      `json:"total"`
	Percent          int      `json:"percent"`
	ArchiveURL       string   `json:"archive_url,omitempty"`
	ArchiveItemCount int      `json:"archive_item_count"`
	Errors           []string `json:"errors,omitempty"`
}

func (j *Job) Progress() Progress {
	return Progress{
		JobID:            j.ID,
		Status:           j.Status,
		Processed:        j.ProcessedRecords,
		Total:            j.TotalRecords,
		Percent:          Percent(j.ProcessedRecords, j.TotalRecords),
		ArchiveURL:       j.ArchiveURL,
		ArchiveItemCount: j.ArchiveItemCount,
		Errors:           slices.Clone(j.Errors),
	}
}

// Percent is round(processed/total*100), 0 when total is 0
func Percent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(processed) / float64(total) * 100))
}
