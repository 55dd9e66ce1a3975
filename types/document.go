package types

import "time"

// Document is metadata for a file attached to a sample. The stored bytes
// live in object storage under Key; rows are deleted independently of
// the owning sample.
type Document struct {
	// ID is the unique identifier of the document.
	ID int `json:"id" db:"id"`

	// SampleID identifies the owning sample.
	SampleID int `json:"sample_id" db:"sample_id"`

	// Key is the object-storage key the bytes are stored under.
	Key string `json:"key" db:"key"`

	// Filename is the original client-supplied filename.
	Filename string `json:"filename" db:"filename"`

	// ContentType is the MIME type reported at upload.
	ContentType string `json:"content_type" db:"content_type"`

	// Size is the byte size of the stored object.
	Size int64 `json:"size" db:"size"`

	// UploadedBy identifies the uploading user.
	UploadedBy int `json:"uploaded_by" db:"uploaded_by"`

	// CreatedAt is the upload timestamp.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
