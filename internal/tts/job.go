package tts

import (
	"time"

	"github.com/folioapp/folio-server/internal/domain"
)

// ApplyVendorJob merges the vendor's view of a job into the stored
// record. Owner, novel, and chapter context on the record are never
// touched; only status, error, and segments move. Returns true when
// anything changed.
func ApplyVendorJob(job *domain.ReadaloudJob, vendor *Job) bool {
	changed := false

	if vendor.Status != "" && vendor.Status != job.Status {
		job.Status = vendor.Status
		changed = true
	}
	if vendor.Error != "" && vendor.Error != job.Error {
		job.Error = vendor.Error
		changed = true
	}
	if len(vendor.Segments) != len(job.Segments) {
		job.Segments = DomainSegments(vendor.Segments)
		changed = true
	}

	if changed {
		job.UpdatedAt = time.Now().UTC()
	}
	return changed
}

// DomainSegments converts vendor segments to their domain shape,
// dropping the vendor-internal audio URLs.
func DomainSegments(segments []Segment) []domain.ReadaloudSegment {
	out := make([]domain.ReadaloudSegment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, domain.ReadaloudSegment{
			Index:       seg.Index,
			Format:      seg.Format,
			DurationSec: seg.DurationSec,
			Timings:     seg.Timings,
		})
	}
	return out
}
