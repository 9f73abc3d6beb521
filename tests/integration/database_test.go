package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/csms/internal/adapter/storage/postgres"
	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

func TestDatabase_StationRepository(t *testing.T) {
	env := SetupTestEnvironment(t)
	if env == nil || env.DB == nil {
		t.Skip("Database not available")
	}
	CleanDatabase(t, env.DB)

	ctx := context.Background()
	repo := postgres.NewStationRepository(env.DB, env.Logger)

	t.Run("SaveAndFind", func(t *testing.T) {
		st := &domain.Station{
			ID:                "CP-IT-1",
			Vendor:            "VoltGrid",
			Model:             "DC150",
			ProtocolVersion:   domain.ProtocolV16,
			Status:            domain.StationStatusOnline,
			HeartbeatInterval: 60,
		}
		if err := repo.Save(ctx, st); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		found, err := repo.FindByID(ctx, "CP-IT-1")
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if found.Vendor != "VoltGrid" || found.HeartbeatInterval != 60 {
			t.Errorf("unexpected station: %+v", found)
		}
	})

	t.Run("FindMissing", func(t *testing.T) {
		_, err := repo.FindByID(ctx, "CP-NOPE")
		if !errors.Is(err, domain.ErrStationNotFound) {
			t.Errorf("expected ErrStationNotFound, got %v", err)
		}
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		if err := repo.UpdateStatus(ctx, "CP-IT-1", domain.StationStatusOffline); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		found, _ := repo.FindByID(ctx, "CP-IT-1")
		if found.Status != domain.StationStatusOffline {
			t.Errorf("expected Offline, got %s", found.Status)
		}

		if err := repo.UpdateStatus(ctx, "CP-NOPE", domain.StationStatusOnline); !errors.Is(err, domain.ErrStationNotFound) {
			t.Errorf("expected ErrStationNotFound for unknown station, got %v", err)
		}
	})

	t.Run("UpdateHeartbeatMarksOnline", func(t *testing.T) {
		at := time.Now().UTC()
		if err := repo.UpdateHeartbeat(ctx, "CP-IT-1", at); err != nil {
			t.Fatalf("UpdateHeartbeat failed: %v", err)
		}
		found, _ := repo.FindByID(ctx, "CP-IT-1")
		if found.Status != domain.StationStatusOnline {
			t.Errorf("heartbeat should mark station Online, got %s", found.Status)
		}
		if found.LastHeartbeatAt == nil {
			t.Error("LastHeartbeatAt not set")
		}
	})

	t.Run("NextTxSeqMonotonicUnderConcurrency", func(t *testing.T) {
		const workers = 10
		var wg sync.WaitGroup
		seqs := make(chan int, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				seq, err := repo.NextTxSeq(ctx, "CP-IT-1")
				if err != nil {
					t.Errorf("NextTxSeq failed: %v", err)
					return
				}
				seqs <- seq
			}()
		}
		wg.Wait()
		close(seqs)

		seen := make(map[int]bool)
		for seq := range seqs {
			if seen[seq] {
				t.Fatalf("duplicate transaction id %d", seq)
			}
			seen[seq] = true
		}
		if len(seen) != workers {
			t.Errorf("expected %d distinct ids, got %d", workers, len(seen))
		}
	})
}

func TestDatabase_ConnectorRepository(t *testing.T) {
	env := SetupTestEnvironment(t)
	if env == nil || env.DB == nil {
		t.Skip("Database not available")
	}
	CleanDatabase(t, env.DB)

	ctx := context.Background()
	stRepo := postgres.NewStationRepository(env.DB, env.Logger)
	repo := postgres.NewConnectorRepository(env.DB, env.Logger)

	if err := stRepo.Save(ctx, &domain.Station{ID: "CP-IT-2", Status: domain.StationStatusOnline}); err != nil {
		t.Fatalf("station save failed: %v", err)
	}

	t.Run("SaveIsUpsert", func(t *testing.T) {
		c := &domain.Connector{StationID: "CP-IT-2", ConnectorID: 1, Status: domain.ConnectorStatusAvailable}
		if err := repo.Save(ctx, c); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		// Saving the same station/connector pair again updates in place.
		c2 := &domain.Connector{StationID: "CP-IT-2", ConnectorID: 1, Status: domain.ConnectorStatusFaulted, LastErrorCode: "GroundFailure"}
		if err := repo.Save(ctx, c2); err != nil {
			t.Fatalf("second Save failed: %v", err)
		}

		found, err := repo.FindByKey(ctx, "CP-IT-2", 1)
		if err != nil {
			t.Fatalf("FindByKey failed: %v", err)
		}
		if found.Status != domain.ConnectorStatusFaulted || found.LastErrorCode != "GroundFailure" {
			t.Errorf("upsert not applied: %+v", found)
		}

		all, err := repo.FindByStation(ctx, "CP-IT-2")
		if err != nil {
			t.Fatalf("FindByStation failed: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("expected 1 connector row, got %d", len(all))
		}
	})

	t.Run("UpdateStatusWritesTxKey", func(t *testing.T) {
		txKey := uuid.NewString()
		if err := repo.UpdateStatus(ctx, "CP-IT-2", 1, domain.ConnectorStatusCharging, "", &txKey); err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		found, _ := repo.FindByKey(ctx, "CP-IT-2", 1)
		if found.CurrentTxKey == nil || *found.CurrentTxKey != txKey {
			t.Error("CurrentTxKey not set")
		}

		if err := repo.UpdateStatus(ctx, "CP-IT-2", 1, domain.ConnectorStatusAvailable, "", nil); err != nil {
			t.Fatalf("release failed: %v", err)
		}
		found, _ = repo.FindByKey(ctx, "CP-IT-2", 1)
		if found.CurrentTxKey != nil {
			t.Error("CurrentTxKey not cleared")
		}
	})
}

func TestDatabase_TransactionRepository(t *testing.T) {
	env := SetupTestEnvironment(t)
	if env == nil || env.DB == nil {
		t.Skip("Database not available")
	}
	CleanDatabase(t, env.DB)

	ctx := context.Background()
	stRepo := postgres.NewStationRepository(env.DB, env.Logger)
	repo := postgres.NewTransactionRepository(env.DB, env.Logger)

	if err := stRepo.Save(ctx, &domain.Station{ID: "CP-IT-3", Status: domain.StationStatusOnline}); err != nil {
		t.Fatalf("station save failed: %v", err)
	}

	ocppID := 42
	tx := &domain.Transaction{
		Key:         uuid.NewString(),
		StationID:   "CP-IT-3",
		ConnectorID: 1,
		OcppTxID:    &ocppID,
		IdTag:       "TAG-IT-1",
		StartTime:   time.Now().UTC(),
		MeterStart:  1000,
		Status:      domain.TransactionStatusActive,
	}

	t.Run("SaveAndWireLookups", func(t *testing.T) {
		if err := repo.Save(ctx, tx); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		byOcpp, err := repo.FindByOcppTxID(ctx, "CP-IT-3", 42)
		if err != nil {
			t.Fatalf("FindByOcppTxID failed: %v", err)
		}
		if byOcpp.Key != tx.Key {
			t.Errorf("wrong transaction: %s", byOcpp.Key)
		}

		active, err := repo.FindActiveByIdTag(ctx, "TAG-IT-1")
		if err != nil {
			t.Fatalf("FindActiveByIdTag failed: %v", err)
		}
		if active.Key != tx.Key {
			t.Errorf("wrong active transaction: %s", active.Key)
		}
	})

	t.Run("UpdateCloses", func(t *testing.T) {
		stop := time.Now().UTC()
		meterStop := 3500
		tx.StopTime = &stop
		tx.MeterStop = &meterStop
		tx.EnergyWh = 2500
		tx.Status = domain.TransactionStatusCompleted
		if err := repo.Update(ctx, tx); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		if _, err := repo.FindActiveByIdTag(ctx, "TAG-IT-1"); !errors.Is(err, domain.ErrTransactionNotFound) {
			t.Errorf("completed transaction still reported active: %v", err)
		}

		found, _ := repo.FindByKey(ctx, tx.Key)
		if found.EnergyWh != 2500 || found.Status != domain.TransactionStatusCompleted {
			t.Errorf("close not persisted: %+v", found)
		}
	})

	t.Run("SampleAppendCountEvict", func(t *testing.T) {
		samples := make([]domain.MeterSample, 5)
		for i := range samples {
			samples[i] = domain.MeterSample{
				Timestamp: time.Now().UTC().Add(time.Duration(i) * time.Minute),
				ValueWh:   1000 + i*100,
			}
		}
		if err := repo.AppendSamples(ctx, tx.Key, samples); err != nil {
			t.Fatalf("AppendSamples failed: %v", err)
		}

		count, err := repo.CountSamples(ctx, tx.Key)
		if err != nil {
			t.Fatalf("CountSamples failed: %v", err)
		}
		if count != 5 {
			t.Fatalf("expected 5 samples, got %d", count)
		}

		if err := repo.DeleteOldestSamples(ctx, tx.Key, 2); err != nil {
			t.Fatalf("DeleteOldestSamples failed: %v", err)
		}
		count, _ = repo.CountSamples(ctx, tx.Key)
		if count != 3 {
			t.Errorf("expected 3 samples after eviction, got %d", count)
		}

		// Oldest rows were the ones removed.
		var remaining []domain.MeterSample
		if err := env.DB.Where("transaction_key = ?", tx.Key).Order("id").Find(&remaining).Error; err != nil {
			t.Fatalf("sample readback failed: %v", err)
		}
		if remaining[0].ValueWh != 1200 {
			t.Errorf("expected oldest surviving sample 1200, got %d", remaining[0].ValueWh)
		}
	})

	t.Run("FindAllFilters", func(t *testing.T) {
		txs, err := repo.FindAll(ctx, ports.TransactionFilter{StationID: "CP-IT-3", Status: domain.TransactionStatusCompleted, Limit: 10})
		if err != nil {
			t.Fatalf("FindAll failed: %v", err)
		}
		if len(txs) != 1 {
			t.Errorf("expected 1 transaction, got %d", len(txs))
		}

		txs, err = repo.FindAll(ctx, ports.TransactionFilter{IdTag: "TAG-OTHER"})
		if err != nil {
			t.Fatalf("FindAll failed: %v", err)
		}
		if len(txs) != 0 {
			t.Errorf("expected no transactions for foreign tag, got %d", len(txs))
		}
	})
}

func TestDatabase_UserRepository(t *testing.T) {
	env := SetupTestEnvironment(t)
	if env == nil || env.DB == nil {
		t.Skip("Database not available")
	}
	CleanDatabase(t, env.DB)

	ctx := context.Background()
	repo := postgres.NewUserRepository(env.DB, env.Logger)

	user := &domain.User{
		ID:       uuid.NewString(),
		Name:     "Integration Driver",
		Email:    "driver@example.com",
		IdTag:    "TAG-IT-USR",
		Role:     domain.UserRoleUser,
		IsActive: true,
	}
	if err := repo.Save(ctx, user); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	byTag, err := repo.FindByIdTag(ctx, "TAG-IT-USR")
	if err != nil {
		t.Fatalf("FindByIdTag failed: %v", err)
	}
	if byTag.ID != user.ID {
		t.Errorf("wrong user: %s", byTag.ID)
	}

	byEmail, err := repo.FindByEmail(ctx, "driver@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if byEmail.ID != user.ID {
		t.Errorf("wrong user: %s", byEmail.ID)
	}

	if _, err := repo.FindByIdTag(ctx, "TAG-GHOST"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
