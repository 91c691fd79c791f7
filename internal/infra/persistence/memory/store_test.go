package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"ensemblestore/pkg/domain"
)

func intPtr(v int) *int { return &v }

func seedEnsemble(t *testing.T, store *Store, size int) (domain.Experiment, domain.Ensemble) {
	t.Helper()
	var experiment domain.Experiment
	var ensemble domain.Ensemble
	if err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		experiment, err = tx.CreateExperiment(domain.Experiment{Name: "test"})
		if err != nil {
			return err
		}
		ensemble, err = tx.CreateEnsemble(domain.Ensemble{
			ExperimentID:   experiment.ID,
			Size:           size,
			ParameterNames: []string{"coeffs"},
			ResponseNames:  []string{"output"},
		})
		return err
	}); err != nil {
		t.Fatalf("seed ensemble: %v", err)
	}
	return experiment, ensemble
}

func TestCreateExperimentAssignsIdentity(t *testing.T) {
	store := NewStore()
	experiment, ensemble := seedEnsemble(t, store, 3)
	if experiment.ID == "" || experiment.CreatedAt.IsZero() {
		t.Fatalf("expected identity on created experiment, got %+v", experiment)
	}
	if ensemble.ExperimentID != experiment.ID {
		t.Fatalf("ensemble not linked to experiment")
	}
	if err := store.View(context.Background(), func(view domain.TransactionView) error {
		if _, ok := view.GetExperiment(experiment.ID); !ok {
			return fmt.Errorf("experiment not visible")
		}
		if got := view.ListEnsembles(experiment.ID); len(got) != 1 {
			return fmt.Errorf("expected 1 ensemble, got %d", len(got))
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestCreateExperimentRequiresName(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateExperiment(domain.Experiment{})
		return err
	})
	if err == nil {
		t.Fatal("expected error for unnamed experiment")
	}
}

func TestCreateEnsembleRejectsNameOverlap(t *testing.T) {
	store := NewStore()
	experiment, _ := seedEnsemble(t, store, 3)
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateEnsemble(domain.Ensemble{
			ExperimentID:   experiment.ID,
			Size:           3,
			ParameterNames: []string{"shared", "a"},
			ResponseNames:  []string{"shared", "b"},
		})
		return err
	})
	var overlap domain.NameOverlapError
	if !errors.As(err, &overlap) {
		t.Fatalf("expected NameOverlapError, got %v", err)
	}
	if len(overlap.Overlap) != 1 || overlap.Overlap[0] != "shared" {
		t.Fatalf("expected overlap on %q, got %v", "shared", overlap.Overlap)
	}
}

func TestCreateRecordUniqueness(t *testing.T) {
	store := NewStore()
	_, ensemble := seedEnsemble(t, store, 3)

	create := func(index *int) error {
		return store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			matrix, err := tx.CreateMatrix(domain.FloatMatrix{Shape: []int{2}, Values: []float64{1, 2}})
			if err != nil {
				return err
			}
			_, err = tx.CreateRecord(domain.Record{
				EnsembleID:       ensemble.ID,
				Name:             "coeffs",
				RealizationIndex: index,
				Class:            domain.RecordClassParameter,
				Payload:          domain.MatrixPayload(matrix.ID),
			})
			return err
		})
	}

	if err := create(intPtr(0)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	// Same name, same realization.
	var dup domain.DuplicateRecordError
	if err := create(intPtr(0)); !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateRecordError for same index, got %v", err)
	}
	// A different realization of the same name is fine.
	if err := create(intPtr(1)); err != nil {
		t.Fatalf("second realization: %v", err)
	}
	// An ensemble-wide record collides with any per-realization one.
	if err := create(nil); !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateRecordError for ensemble-wide, got %v", err)
	}
}

func TestCreateRecordEnsembleWideBlocksPerRealization(t *testing.T) {
	store := NewStore()
	_, ensemble := seedEnsemble(t, store, 3)
	create := func(index *int) error {
		return store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			matrix, err := tx.CreateMatrix(domain.FloatMatrix{Shape: []int{3, 2}, Values: []float64{1, 2, 3, 4, 5, 6}})
			if err != nil {
				return err
			}
			_, err = tx.CreateRecord(domain.Record{
				EnsembleID:       ensemble.ID,
				Name:             "coeffs",
				RealizationIndex: index,
				Class:            domain.RecordClassParameter,
				Payload:          domain.MatrixPayload(matrix.ID),
			})
			return err
		})
	}
	if err := create(nil); err != nil {
		t.Fatalf("ensemble-wide create: %v", err)
	}
	var dup domain.DuplicateRecordError
	if err := create(intPtr(2)); !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateRecordError, got %v", err)
	}
}

func TestCreateMatrixValidatesShape(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateMatrix(domain.FloatMatrix{Shape: []int{2, 2}, Values: []float64{1, 2, 3}})
		return err
	})
	if err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	store := NewStore()
	experiment, _ := seedEnsemble(t, store, 3)
	sentinel := errors.New("abort")
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateExperiment(domain.Experiment{Name: "doomed"}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if err := store.View(context.Background(), func(view domain.TransactionView) error {
		experiments := view.ListExperiments()
		if len(experiments) != 1 || experiments[0].ID != experiment.ID {
			return fmt.Errorf("rolled-back state leaked: %+v", experiments)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestDeleteExperimentCascades(t *testing.T) {
	store := NewStore()
	experiment, ensemble := seedEnsemble(t, store, 3)
	if err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		matrix, err := tx.CreateMatrix(domain.FloatMatrix{Shape: []int{1}, Values: []float64{1}})
		if err != nil {
			return err
		}
		record, err := tx.CreateRecord(domain.Record{
			EnsembleID: ensemble.ID,
			Name:       "output",
			Class:      domain.RecordClassResponse,
			Payload:    domain.MatrixPayload(matrix.ID),
		})
		if err != nil {
			return err
		}
		_, err = tx.CreateObservation(domain.Observation{
			ExperimentID: experiment.ID,
			Name:         "obs",
			XAxis:        []string{"0"},
			Values:       []float64{1},
			Errors:       []float64{0.1},
			RecordIDs:    []string{record.ID},
		})
		return err
	}); err != nil {
		t.Fatalf("seed records: %v", err)
	}

	if err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteExperiment(experiment.ID)
	}); err != nil {
		t.Fatalf("delete experiment: %v", err)
	}

	if err := store.View(context.Background(), func(view domain.TransactionView) error {
		if len(view.ListExperiments()) != 0 {
			return fmt.Errorf("experiment survived delete")
		}
		if len(view.ListRecords(ensemble.ID)) != 0 {
			return fmt.Errorf("records survived delete")
		}
		if len(view.ListObservations(experiment.ID)) != 0 {
			return fmt.Errorf("observations survived delete")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestListRecordsByNameOrder(t *testing.T) {
	store := NewStore()
	_, ensemble := seedEnsemble(t, store, 5)
	if err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for _, index := range []int{3, 1, 2} {
			matrix, err := tx.CreateMatrix(domain.FloatMatrix{Shape: []int{1}, Values: []float64{float64(index)}})
			if err != nil {
				return err
			}
			if _, err := tx.CreateRecord(domain.Record{
				EnsembleID:       ensemble.ID,
				Name:             "output",
				RealizationIndex: intPtr(index),
				Class:            domain.RecordClassResponse,
				Payload:          domain.MatrixPayload(matrix.ID),
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.View(context.Background(), func(view domain.TransactionView) error {
		got := view.ListRecordsByName(ensemble.ID, "output")
		if len(got) != 3 {
			return fmt.Errorf("expected 3 records, got %d", len(got))
		}
		for i, want := range []int{1, 2, 3} {
			if got[i].RealizationIndex == nil || *got[i].RealizationIndex != want {
				return fmt.Errorf("position %d: expected realization %d, got %+v", i, want, got[i].RealizationIndex)
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestFileBlockLifecycle(t *testing.T) {
	store := NewStore()
	_, ensemble := seedEnsemble(t, store, 3)
	if err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for _, block := range []struct {
			index   int
			content string
		}{{1, "b"}, {0, "a"}, {2, "c"}} {
			if _, err := tx.CreateFileBlock(domain.FileBlock{
				EnsembleID: ensemble.ID,
				RecordName: "archive",
				BlockIndex: block.index,
				Content:    []byte(block.content),
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("stage blocks: %v", err)
	}
	if err := store.View(context.Background(), func(view domain.TransactionView) error {
		blocks := view.ListFileBlocks(ensemble.ID, "archive", nil)
		if len(blocks) != 3 {
			return fmt.Errorf("expected 3 blocks, got %d", len(blocks))
		}
		var joined string
		for _, block := range blocks {
			joined += string(block.Content)
		}
		if joined != "abc" {
			return fmt.Errorf("expected block-index order, got %q", joined)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteFileBlocks(ensemble.ID, "archive", nil)
	}); err != nil {
		t.Fatalf("delete blocks: %v", err)
	}
	if err := store.View(context.Background(), func(view domain.TransactionView) error {
		if blocks := view.ListFileBlocks(ensemble.ID, "archive", nil); len(blocks) != 0 {
			return fmt.Errorf("blocks survived delete: %d", len(blocks))
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestCreateFileBlockRejectsDuplicateIndex(t *testing.T) {
	store := NewStore()
	_, ensemble := seedEnsemble(t, store, 3)
	stage := func(index int, realization *int, content string) error {
		return store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, err := tx.CreateFileBlock(domain.FileBlock{
				EnsembleID:       ensemble.ID,
				RecordName:       "archive",
				RealizationIndex: realization,
				BlockIndex:       index,
				Content:          []byte(content),
			})
			return err
		})
	}
	if err := stage(1, nil, "first"); err != nil {
		t.Fatalf("stage block: %v", err)
	}
	err := stage(1, nil, "second")
	var duplicate domain.DuplicateFileBlockError
	if !errors.As(err, &duplicate) {
		t.Fatalf("expected DuplicateFileBlockError, got %v", err)
	}
	if duplicate.BlockIndex != 1 {
		t.Fatalf("expected block index 1, got %d", duplicate.BlockIndex)
	}
	// the same index under a different realization is a different record
	if err := stage(1, intPtr(0), "other"); err != nil {
		t.Fatalf("stage block for realization: %v", err)
	}
	if err := store.View(context.Background(), func(view domain.TransactionView) error {
		blocks := view.ListFileBlocks(ensemble.ID, "archive", nil)
		if len(blocks) != 1 || string(blocks[0].Content) != "first" {
			return fmt.Errorf("expected the first block to survive, got %d blocks", len(blocks))
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestCreateObservationUniqueName(t *testing.T) {
	store := NewStore()
	experiment, _ := seedEnsemble(t, store, 3)
	observe := func(name string) error {
		return store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, err := tx.CreateObservation(domain.Observation{
				ExperimentID: experiment.ID,
				Name:         name,
				XAxis:        []string{"0"},
				Values:       []float64{1},
				Errors:       []float64{0.1},
			})
			return err
		})
	}
	if err := observe("obs"); err != nil {
		t.Fatalf("create observation: %v", err)
	}
	err := observe("obs")
	var duplicate domain.DuplicateObservationError
	if !errors.As(err, &duplicate) {
		t.Fatalf("expected DuplicateObservationError, got %v", err)
	}
	if duplicate.ExperimentID != experiment.ID {
		t.Fatalf("expected experiment %q, got %q", experiment.ID, duplicate.ExperimentID)
	}
	if err := observe("other"); err != nil {
		t.Fatalf("create second observation: %v", err)
	}
}

func TestPriorRequiresParameterClass(t *testing.T) {
	store := NewStore()
	value := 1.5
	var experiment domain.Experiment
	var ensemble domain.Ensemble
	if err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		experiment, err = tx.CreateExperiment(domain.Experiment{
			Name: "with-priors",
			Priors: map[string]domain.Prior{
				"coeffs": {Function: domain.PriorConst, Value: &value},
			},
		})
		if err != nil {
			return err
		}
		ensemble, err = tx.CreateEnsemble(domain.Ensemble{ExperimentID: experiment.ID, Size: 1})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	priorID := experiment.Priors["coeffs"].ID
	if priorID == "" {
		t.Fatal("expected prior to be assigned an id")
	}
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		matrix, err := tx.CreateMatrix(domain.FloatMatrix{Shape: []int{1}, Values: []float64{1}})
		if err != nil {
			return err
		}
		_, err = tx.CreateRecord(domain.Record{
			EnsembleID: ensemble.ID,
			Name:       "output",
			Class:      domain.RecordClassResponse,
			PriorID:    &priorID,
			Payload:    domain.MatrixPayload(matrix.ID),
		})
		return err
	})
	var invalid domain.InvalidPriorAssignmentError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidPriorAssignmentError, got %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore()
	experiment, _ := seedEnsemble(t, store, 3)
	snapshot := store.ExportState()

	restored := NewStore()
	restored.ImportState(snapshot)
	if err := restored.View(context.Background(), func(view domain.TransactionView) error {
		if _, ok := view.GetExperiment(experiment.ID); !ok {
			return fmt.Errorf("experiment missing after import")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}
