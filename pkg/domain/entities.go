// Package domain defines the persistent entities, value types, and store
// contracts for the ensemble record storage service.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RecordType identifies the physical representation backing a record.
type RecordType string

// Supported record payload representations.
const (
	// RecordTypeFloatMatrix marks records backed by an n-dimensional float matrix.
	RecordTypeFloatMatrix RecordType = "float_matrix"
	// RecordTypeFile marks records backed by an uploaded file or blob.
	RecordTypeFile RecordType = "file"
)

// RecordClass categorises a record within an ensemble.
type RecordClass string

// Record classes. Parameters are inputs to a simulation, responses are
// outputs, everything else is "other".
const (
	RecordClassParameter RecordClass = "parameter"
	RecordClassResponse  RecordClass = "response"
	RecordClassOther     RecordClass = "other"
)

// Base contains common fields for all stored entities.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Experiment is a named container owning ensembles and observations.
type Experiment struct {
	Base
	Name     string           `json:"name"`
	Priors   map[string]Prior `json:"priors"`
	Metadata map[string]any   `json:"metadata"`
	Userdata map[string]any   `json:"userdata"`
}

// Ensemble groups the records of one set of realizations. Size -1 means the
// realization count is unset and no index bound is enforced.
type Ensemble struct {
	Base
	ExperimentID       string         `json:"experiment_id"`
	Size               int            `json:"size"`
	ParameterNames     []string       `json:"parameter_names"`
	ResponseNames      []string       `json:"response_names"`
	ActiveRealizations []int          `json:"active_realizations,omitempty"`
	Metadata           map[string]any `json:"metadata"`
	Userdata           map[string]any `json:"userdata"`
}

// RealizationInRange reports whether index is addressable within the
// ensemble. An unset size (-1) accepts any index; an explicit active set
// restricts indices further.
func (e Ensemble) RealizationInRange(index int) bool {
	if e.Size < 0 {
		return true
	}
	if index < 0 || index >= e.Size {
		return false
	}
	if len(e.ActiveRealizations) == 0 {
		return true
	}
	for _, active := range e.ActiveRealizations {
		if active == index {
			return true
		}
	}
	return false
}

// Record is the central polymorphic entity: a named piece of ensemble data,
// either ensemble-wide (nil realization index) or per-realization.
type Record struct {
	Base
	EnsembleID       string         `json:"ensemble_id"`
	Name             string         `json:"name"`
	RealizationIndex *int           `json:"realization_index"`
	Class            RecordClass    `json:"record_class"`
	PriorID          *string        `json:"prior_id,omitempty"`
	Payload          RecordPayload  `json:"payload"`
	ObservationIDs   []string       `json:"observation_ids,omitempty"`
	Metadata         map[string]any `json:"metadata"`
	Userdata         map[string]any `json:"userdata"`
}

// RecordPayload is a tagged union referencing exactly one backing entity:
// a FloatMatrix or a File. The zero value is invalid; construct via
// MatrixPayload or FilePayload.
type RecordPayload struct {
	kind RecordType
	ref  string
}

// MatrixPayload builds a payload referencing a FloatMatrix by id.
func MatrixPayload(matrixID string) RecordPayload {
	return RecordPayload{kind: RecordTypeFloatMatrix, ref: matrixID}
}

// FilePayload builds a payload referencing a File by id.
func FilePayload(fileID string) RecordPayload {
	return RecordPayload{kind: RecordTypeFile, ref: fileID}
}

// Type returns the record type tag of the payload.
func (p RecordPayload) Type() RecordType { return p.kind }

// MatrixID returns the referenced matrix id, if the payload is a matrix.
func (p RecordPayload) MatrixID() (string, bool) {
	if p.kind != RecordTypeFloatMatrix {
		return "", false
	}
	return p.ref, true
}

// FileID returns the referenced file id, if the payload is a file.
func (p RecordPayload) FileID() (string, bool) {
	if p.kind != RecordTypeFile {
		return "", false
	}
	return p.ref, true
}

type recordPayloadJSON struct {
	Type RecordType `json:"type"`
	Ref  string     `json:"ref"`
}

// MarshalJSON encodes the payload tag and reference for snapshots.
func (p RecordPayload) MarshalJSON() ([]byte, error) {
	if p.kind == "" {
		return nil, fmt.Errorf("record payload is unset")
	}
	return json.Marshal(recordPayloadJSON{Type: p.kind, Ref: p.ref})
}

// UnmarshalJSON restores a payload from its snapshot form.
func (p *RecordPayload) UnmarshalJSON(data []byte) error {
	var raw recordPayloadJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case RecordTypeFloatMatrix, RecordTypeFile:
		p.kind, p.ref = raw.Type, raw.Ref
		return nil
	default:
		return fmt.Errorf("unknown record payload type %q", raw.Type)
	}
}

// Labels is the (column-names, row-names) pair attached to a FloatMatrix,
// enabling tabular round-trips. Both slices are present or the whole value
// is nil.
type Labels struct {
	Columns []string `json:"columns"`
	Rows    []string `json:"rows"`
}

// FloatMatrix is an n-dimensional array of 64-bit floats stored flattened in
// row-major order with its shape.
type FloatMatrix struct {
	Base
	Shape  []int     `json:"shape"`
	Values []float64 `json:"values"`
	Labels *Labels   `json:"labels,omitempty"`
}

// Rank returns the number of dimensions.
func (m FloatMatrix) Rank() int { return len(m.Shape) }

// Slice extracts the sub-array at the given first-axis index. The matrix
// must have rank >= 1 and the index must be in range.
func (m FloatMatrix) Slice(index int) (FloatMatrix, error) {
	if m.Rank() == 0 || index < 0 || index >= m.Shape[0] {
		return FloatMatrix{}, fmt.Errorf("index %d out of range for shape %v", index, m.Shape)
	}
	stride := 1
	for _, dim := range m.Shape[1:] {
		stride *= dim
	}
	out := FloatMatrix{
		Shape:  append([]int(nil), m.Shape[1:]...),
		Values: append([]float64(nil), m.Values[index*stride:(index+1)*stride]...),
	}
	if m.Labels != nil {
		// Column labels survive slicing; the row label collapses away.
		out.Labels = &Labels{
			Columns: append([]string(nil), m.Labels.Columns...),
			Rows:    nil,
		}
	}
	return out, nil
}

// FileBodyKind discriminates where file content lives.
type FileBodyKind string

// File body states. Pending bodies exist only between blob creation and
// finalization.
const (
	FileBodyPending  FileBodyKind = "pending"
	FileBodyInline   FileBodyKind = "inline"
	FileBodyExternal FileBodyKind = "external"
)

// FileBody holds file content in exactly one place: inline bytes or an
// external (container, key) locator. A pending body has neither yet.
type FileBody struct {
	kind      FileBodyKind
	content   []byte
	container string
	key       string
	uploadID  string
}

// PendingBody returns a body awaiting staged-block finalization.
func PendingBody() FileBody { return FileBody{kind: FileBodyPending} }

// PendingExternalBody returns a pending body that already owns a remote
// object key and multipart upload handle.
func PendingExternalBody(container, key, uploadID string) FileBody {
	return FileBody{kind: FileBodyPending, container: container, key: key, uploadID: uploadID}
}

// InlineBody returns a body holding content directly.
func InlineBody(content []byte) FileBody {
	return FileBody{kind: FileBodyInline, content: content}
}

// ExternalBody returns a body pointing at a blob backend object.
func ExternalBody(container, key string) FileBody {
	return FileBody{kind: FileBodyExternal, container: container, key: key}
}

// Kind returns the body state.
func (b FileBody) Kind() FileBodyKind { return b.kind }

// Content returns inline bytes, valid only for inline bodies.
func (b FileBody) Content() ([]byte, bool) {
	if b.kind != FileBodyInline {
		return nil, false
	}
	return b.content, true
}

// Locator returns the external (container, key) pair for external bodies and
// for pending bodies that pre-allocated a remote object.
func (b FileBody) Locator() (container, key string, ok bool) {
	if b.key == "" {
		return "", "", false
	}
	return b.container, b.key, true
}

// UploadID returns the multipart upload handle of a pending external body.
func (b FileBody) UploadID() (string, bool) {
	if b.uploadID == "" {
		return "", false
	}
	return b.uploadID, true
}

type fileBodyJSON struct {
	Kind      FileBodyKind `json:"kind"`
	Content   []byte       `json:"content,omitempty"`
	Container string       `json:"container,omitempty"`
	Key       string       `json:"key,omitempty"`
	UploadID  string       `json:"upload_id,omitempty"`
}

// MarshalJSON encodes the body for snapshots.
func (b FileBody) MarshalJSON() ([]byte, error) {
	return json.Marshal(fileBodyJSON{Kind: b.kind, Content: b.content, Container: b.container, Key: b.key, UploadID: b.uploadID})
}

// UnmarshalJSON restores a body from its snapshot form.
func (b *FileBody) UnmarshalJSON(data []byte) error {
	var raw fileBodyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case FileBodyPending, FileBodyInline, FileBodyExternal:
		b.kind, b.content, b.container, b.key, b.uploadID = raw.Kind, raw.Content, raw.Container, raw.Key, raw.UploadID
		return nil
	default:
		return fmt.Errorf("unknown file body kind %q", raw.Kind)
	}
}

// File is an uploaded payload with its original filename and MIME type.
type File struct {
	Base
	Filename string   `json:"filename"`
	MimeType string   `json:"mimetype"`
	Body     FileBody `json:"body"`
}

// FileBlock is one staged chunk of a multi-part blob upload. Blocks exist
// only between blob creation and finalization.
type FileBlock struct {
	Base
	EnsembleID       string `json:"ensemble_id"`
	RecordName       string `json:"record_name"`
	RealizationIndex *int   `json:"realization_index"`
	BlockIndex       int    `json:"block_index"`
	BlockID          string `json:"block_id"`
	Content          []byte `json:"content,omitempty"`
}

// Observation holds measured values with errors along an x axis, linked to
// the records it was computed against.
type Observation struct {
	Base
	ExperimentID string         `json:"experiment_id"`
	Name         string         `json:"name"`
	XAxis        []string       `json:"x_axis"`
	Values       []float64      `json:"values"`
	Errors       []float64      `json:"errors"`
	RecordIDs    []string       `json:"record_ids,omitempty"`
	Metadata     map[string]any `json:"metadata"`
	Userdata     map[string]any `json:"userdata"`
}

// Update records the provenance of one ensemble being derived from another
// via an algorithm. EnsembleResultID is set once the produced ensemble is
// created.
type Update struct {
	Base
	Algorithm           string  `json:"algorithm"`
	EnsembleReferenceID string  `json:"ensemble_reference_id"`
	EnsembleResultID    *string `json:"ensemble_result_id"`
}

// ObservationTransformation carries the per-observation active/scale vectors
// applied by an update algorithm.
type ObservationTransformation struct {
	Base
	UpdateID      string    `json:"update_id"`
	ObservationID string    `json:"observation_id"`
	Active        []bool    `json:"active"`
	Scale         []float64 `json:"scale"`
}
