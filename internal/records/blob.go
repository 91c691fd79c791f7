package records

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"ensemblestore/internal/blob"
	"ensemblestore/pkg/domain"
)

// CreateBlobInput carries the allocation of a chunked file record.
type CreateBlobInput struct {
	Name             string
	RealizationIndex *int
	Filename         string
	MimeType         string
}

// CreateBlob allocates a pending file record whose content arrives as
// staged blocks. With an external backend a multipart upload is opened up
// front so blocks stream straight through.
func (s *Service) CreateBlob(ctx context.Context, ensembleID string, in CreateBlobInput) (domain.Record, error) {
	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	body := domain.PendingBody()
	var key, uploadID string
	if s.blobs != nil {
		if err := s.store.View(ctx, func(view domain.TransactionView) error {
			if _, err := ensembleFor(view, ensembleID, in.RealizationIndex, in.Name); err != nil {
				return err
			}
			return assertRecordCreatable(view, ensembleID, in.Name, in.RealizationIndex)
		}); err != nil {
			return domain.Record{}, err
		}
		key = blobKey(ensembleID, in.Name, in.RealizationIndex)
		var err error
		uploadID, err = s.blobs.CreateMultipart(ctx, key, blob.PutOptions{ContentType: mimeType})
		if err != nil {
			return domain.Record{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
		}
		body = domain.PendingExternalBody(string(s.blobs.Driver()), key, uploadID)
	}

	var created domain.Record
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := ensembleFor(tx.Snapshot(), ensembleID, in.RealizationIndex, in.Name); err != nil {
			return err
		}
		file, err := tx.CreateFile(domain.File{
			Filename: in.Filename,
			MimeType: mimeType,
			Body:     body,
		})
		if err != nil {
			return err
		}
		created, err = tx.CreateRecord(domain.Record{
			EnsembleID:       ensembleID,
			Name:             in.Name,
			RealizationIndex: in.RealizationIndex,
			Class:            domain.RecordClassOther,
			Payload:          domain.FilePayload(file.ID),
		})
		return err
	})
	if err != nil {
		if s.blobs != nil {
			if abortErr := s.blobs.AbortMultipart(ctx, key, uploadID); abortErr != nil {
				s.log.Warn("abandoned multipart upload not aborted", zap.String("key", key), zap.Error(abortErr))
			}
		}
		return domain.Record{}, err
	}
	s.log.Debug("blob record allocated", zap.String("ensemble_id", ensembleID), zap.String("name", in.Name))
	return created, nil
}

// pendingFile resolves the record's backing file and asserts it has not
// been finalized yet.
func pendingFile(view domain.TransactionView, ensembleID, name string, realizationIndex *int) (domain.Record, domain.File, error) {
	record, ok := view.FindRecord(ensembleID, name, realizationIndex)
	if !ok {
		return domain.Record{}, domain.File{}, domain.RecordNotFoundError{Name: name, EnsembleID: ensembleID, RealizationIndex: realizationIndex}
	}
	fileID, ok := record.Payload.FileID()
	if !ok {
		return domain.Record{}, domain.File{}, domain.ValidationError{Reason: fmt.Sprintf("record %q is not a file record", name)}
	}
	file, ok := view.GetFile(fileID)
	if !ok {
		return domain.Record{}, domain.File{}, domain.ValidationError{Reason: fmt.Sprintf("file %q not found", fileID)}
	}
	if file.Body.Kind() != domain.FileBodyPending {
		return domain.Record{}, domain.File{}, domain.AlreadyFinalizedError{Name: name, EnsembleID: ensembleID}
	}
	return record, file, nil
}

// StageBlock uploads one chunk of a pending blob record. Blocks may arrive
// in any order; the block index determines their position at finalization.
func (s *Service) StageBlock(ctx context.Context, ensembleID, name string, realizationIndex *int, blockIndex int, content []byte) error {
	if blockIndex < 0 {
		return domain.ValidationError{Reason: fmt.Sprintf("block index %d must not be negative", blockIndex)}
	}

	// External backends receive the chunk before the entity store records
	// it, mirroring the write-then-commit order of whole-file writes.
	blockID := ""
	if s.blobs != nil {
		var stageErr error
		err := s.store.View(ctx, func(view domain.TransactionView) error {
			_, file, err := pendingFile(view, ensembleID, name, realizationIndex)
			if err != nil {
				return err
			}
			_, key, ok := file.Body.Locator()
			uploadID, okUpload := file.Body.UploadID()
			if !ok || !okUpload {
				return domain.ValidationError{Reason: fmt.Sprintf("record %q has no multipart upload", name)}
			}
			part, err := s.blobs.StageChunk(ctx, key, uploadID, int32(blockIndex+1), content)
			if err != nil {
				stageErr = fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
				return stageErr
			}
			blockID = part.ID
			return nil
		})
		if err != nil {
			return err
		}
	}

	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, _, err := pendingFile(tx.Snapshot(), ensembleID, name, realizationIndex); err != nil {
			return err
		}
		block := domain.FileBlock{
			EnsembleID:       ensembleID,
			RecordName:       name,
			RealizationIndex: realizationIndex,
			BlockIndex:       blockIndex,
			BlockID:          blockID,
		}
		if s.blobs == nil {
			block.Content = content
		}
		_, err := tx.CreateFileBlock(block)
		return err
	})
}

// FinalizeBlob assembles the staged blocks, in block-index order, into the
// record's file body. blockCount, when non-nil, asserts how many blocks
// should have arrived. Finalizing with no blocks yields an empty file.
func (s *Service) FinalizeBlob(ctx context.Context, ensembleID, name string, realizationIndex *int, blockCount *int) error {
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, file, err := pendingFile(tx.Snapshot(), ensembleID, name, realizationIndex)
		if err != nil {
			return err
		}
		blocks := tx.Snapshot().ListFileBlocks(ensembleID, name, realizationIndex)
		if blockCount != nil && *blockCount != len(blocks) {
			return domain.ValidationError{
				Reason: fmt.Sprintf("expected %d blocks for record %q, got %d", *blockCount, name, len(blocks)),
			}
		}

		var body domain.FileBody
		if s.blobs != nil {
			_, key, ok := file.Body.Locator()
			uploadID, okUpload := file.Body.UploadID()
			if !ok || !okUpload {
				return domain.ValidationError{Reason: fmt.Sprintf("record %q has no multipart upload", name)}
			}
			parts := make([]blob.Part, 0, len(blocks))
			for _, block := range blocks {
				parts = append(parts, blob.Part{Number: int32(block.BlockIndex + 1), ID: block.BlockID})
			}
			if len(parts) == 0 {
				// S3 rejects an empty multipart completion; abort the upload
				// and store an empty object instead.
				if err := s.blobs.AbortMultipart(ctx, key, uploadID); err != nil {
					return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
				}
				if _, err := s.blobs.Put(ctx, key, emptyReader(), blob.PutOptions{ContentType: file.MimeType}); err != nil {
					return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
				}
			} else if _, err := s.blobs.CompleteMultipart(ctx, key, uploadID, parts); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
			}
			body = domain.ExternalBody(string(s.blobs.Driver()), key)
		} else {
			var content []byte
			for _, block := range blocks {
				content = append(content, block.Content...)
			}
			body = domain.InlineBody(content)
		}

		if _, err := tx.UpdateFile(file.ID, func(f *domain.File) error {
			f.Body = body
			return nil
		}); err != nil {
			return err
		}
		return tx.DeleteFileBlocks(ensembleID, name, realizationIndex)
	})
	if err != nil {
		return err
	}
	s.log.Debug("blob record finalized", zap.String("ensemble_id", ensembleID), zap.String("name", name))
	return nil
}

func emptyReader() io.Reader { return bytes.NewReader(nil) }
