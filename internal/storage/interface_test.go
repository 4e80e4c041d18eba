package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// TestInterface runs the shared contract against the in-process stores.
func TestInterface(t *testing.T) {
	t.Run("MockStorage", func(t *testing.T) {
		testInterface(t, NewMockStorage())
	})

	t.Run("JSONStorage", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), fmt.Sprintf("advisor_%d.json", time.Now().UnixNano()))
		store, err := NewJSONStorage(path)
		require.NoError(t, err)
		testInterface(t, store)
	})
}

var testExpiration = time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, store Interface) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveAccount(ctx, &models.Account{ID: "acct-1", Name: "Roth IRA", RiskLevel: "conservative"}))
	require.NoError(t, store.SaveAccount(ctx, &models.Account{ID: "acct-2", Name: "Taxable", RiskLevel: "aggressive"}))

	positions := []models.Position{
		{ID: "pos-1", AccountID: "acct-1", Type: models.PositionTypeOption, Ticker: "TSLA",
			OptionType: models.OptionSideCall, Direction: models.DirectionShort,
			Strike: 475, Expiration: testExpiration, Premium: 12.5, Contracts: 2},
		{ID: "pos-2", AccountID: "acct-1", Type: models.PositionTypeStock, Ticker: "TSLA", Contracts: 200},
		{ID: "pos-3", AccountID: "acct-2", Type: models.PositionTypeOption, Ticker: "SPY",
			OptionType: models.OptionSidePut, Direction: models.DirectionShort,
			Strike: 540, Expiration: testExpiration, Premium: 4.2, Contracts: 1},
	}
	for i := range positions {
		require.NoError(t, store.SavePosition(ctx, &positions[i]))
	}
}

func sampleRecommendation(id, accountID string, created time.Time) *models.Recommendation {
	prob := 62.5
	return &models.Recommendation{
		ID:                id,
		PositionID:        "pos-1",
		AccountID:         accountID,
		Symbol:            "TSLA $475 Call 2026-01-30",
		Ticker:            "TSLA",
		OptionType:        models.OptionSideCall,
		Direction:         models.DirectionShort,
		Strike:            475,
		Expiration:        testExpiration,
		Contracts:         2,
		Action:            models.ActionBuyToClose,
		Reason:            "Low DTE (5 days) - time decay risk",
		Source:            models.SourceRules,
		PreliminaryAction: models.ActionBuyToClose,
		PreliminaryReason: "Low DTE (5 days) - time decay risk",
		Metrics:           models.MetricsSnapshot{PLPercent: 80, DTE: 5, AssignmentProbability: &prob},
		CreatedAt:         created,
	}
}

func sampleAlert(id string, created time.Time) *models.Alert {
	return &models.Alert{
		ID:               id,
		Type:             models.JobTypeOptionsScan,
		RecommendationID: "rec-1",
		PositionID:       "pos-1",
		AccountID:        "acct-1",
		AccountName:      "Roth IRA",
		Symbol:           "TSLA $475 Call 2026-01-30",
		Ticker:           "TSLA",
		Recommendation:   models.ActionBuyToClose,
		Reason:           "Close now to keep 80% of the credit",
		Severity:         models.SeverityWarning,
		Strategy:         "Covered Call",
		Strike:           475,
		Metrics:          models.MetricsSnapshot{PLPercent: 80, DTE: 5},
		CreatedAt:        created,
	}
}

func testInterface(t *testing.T, store Interface) {
	ctx := context.Background()
	seed(t, store)

	t.Run("accounts", func(t *testing.T) {
		acct, err := store.GetAccount(ctx, "acct-1")
		require.NoError(t, err)
		assert.Equal(t, "conservative", acct.RiskLevel)

		_, err = store.GetAccount(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("option positions only, stable order", func(t *testing.T) {
		all, err := store.ListOptionPositions(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "pos-1", all[0].ID)
		assert.Equal(t, "pos-3", all[1].ID)
		assert.Equal(t, "2026-01-30", all[0].Expiration.Format("2006-01-02"))
		assert.Equal(t, models.DirectionShort, all[0].Direction)

		one, err := store.ListOptionPositions(ctx, "acct-2")
		require.NoError(t, err)
		require.Len(t, one, 1)
		assert.Equal(t, "SPY", one[0].Ticker)
	})

	t.Run("recommendations newest first", func(t *testing.T) {
		base := time.Date(2026, 1, 20, 15, 0, 0, 0, time.UTC)
		require.NoError(t, store.InsertRecommendation(ctx, sampleRecommendation("rec-1", "acct-1", base)))
		require.NoError(t, store.InsertRecommendation(ctx, sampleRecommendation("rec-2", "acct-1", base.Add(time.Hour))))
		require.NoError(t, store.InsertRecommendation(ctx, sampleRecommendation("rec-3", "acct-2", base.Add(2*time.Hour))))

		err := store.InsertRecommendation(ctx, sampleRecommendation("rec-1", "acct-1", base))
		assert.ErrorIs(t, err, ErrDuplicateID)

		recs, err := store.ListRecommendations(ctx, RecommendationFilter{AccountID: "acct-1"})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "rec-2", recs[0].ID)
		require.NotNil(t, recs[0].Metrics.AssignmentProbability)
		assert.InDelta(t, 62.5, *recs[0].Metrics.AssignmentProbability, 1e-9)

		limited, err := store.ListRecommendations(ctx, RecommendationFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "rec-3", limited[0].ID)
	})

	t.Run("alert delivery state machine", func(t *testing.T) {
		created := time.Date(2026, 1, 20, 15, 5, 0, 0, time.UTC)
		require.NoError(t, store.InsertAlert(ctx, sampleAlert("alert-1", created)))

		at := created.Add(time.Minute)
		require.NoError(t, store.UpdateAlertDelivery(ctx, "alert-1", models.ChannelWebhook,
			models.DeliveryRecord{Status: models.DeliveryFailed, Error: "status 500", AttemptedAt: at}))
		require.NoError(t, store.UpdateAlertDelivery(ctx, "alert-1", models.ChannelWebhook,
			models.DeliveryRecord{Status: models.DeliverySent, AttemptedAt: at.Add(time.Minute)}))

		err := store.UpdateAlertDelivery(ctx, "alert-1", models.ChannelWebhook,
			models.DeliveryRecord{Status: models.DeliveryFailed, Error: "late", AttemptedAt: at.Add(2 * time.Minute)})
		assert.ErrorIs(t, err, models.ErrAlreadySent)

		got, err := store.GetAlert(ctx, "alert-1")
		require.NoError(t, err)
		assert.True(t, got.IsSent(models.ChannelWebhook))
		assert.Equal(t, models.DeliveryPending, got.ChannelState(models.ChannelSocial))
		assert.Empty(t, got.DeliveryStatus[models.ChannelWebhook].Error)

		err = store.UpdateAlertDelivery(ctx, "nope", models.ChannelWebhook, models.DeliveryRecord{Status: models.DeliverySent})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("acknowledged alerts are filtered", func(t *testing.T) {
		created := time.Date(2026, 1, 20, 16, 0, 0, 0, time.UTC)
		require.NoError(t, store.InsertAlert(ctx, sampleAlert("alert-2", created)))

		open, err := store.ListAlerts(ctx, AlertFilter{Type: models.JobTypeOptionsScan})
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, "alert-1", open[0].ID)

		require.NoError(t, store.AcknowledgeAlert(ctx, "alert-1"))
		open, err = store.ListAlerts(ctx, AlertFilter{Type: models.JobTypeOptionsScan})
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "alert-2", open[0].ID)

		all, err := store.ListAlerts(ctx, AlertFilter{IncludeAcknowledged: true})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		none, err := store.ListAlerts(ctx, AlertFilter{Type: "other_job"})
		require.NoError(t, err)
		assert.Empty(t, none)

		assert.ErrorIs(t, store.AcknowledgeAlert(ctx, "missing"), ErrNotFound)
	})

	t.Run("returned alerts are copies", func(t *testing.T) {
		got, err := store.GetAlert(ctx, "alert-2")
		require.NoError(t, err)
		got.DeliveryStatus = map[string]models.DeliveryRecord{models.ChannelSocial: {Status: models.DeliverySent}}

		again, err := store.GetAlert(ctx, "alert-2")
		require.NoError(t, err)
		assert.False(t, again.IsSent(models.ChannelSocial))
	})
}

func TestJSONStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "advisor.json")

	store, err := NewJSONStorage(path)
	require.NoError(t, err)
	seed(t, store)
	require.NoError(t, store.InsertAlert(ctx, sampleAlert("alert-1", time.Now().UTC())))
	require.NoError(t, store.UpdateAlertDelivery(ctx, "alert-1", models.ChannelSocial,
		models.DeliveryRecord{Status: models.DeliverySent, AttemptedAt: time.Now().UTC()}))

	reopened, err := NewJSONStorage(path)
	require.NoError(t, err)
	positions, err := reopened.ListOptionPositions(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, positions, 1)

	got, err := reopened.GetAlert(ctx, "alert-1")
	require.NoError(t, err)
	assert.True(t, got.IsSent(models.ChannelSocial))
}

func TestMockStorage_InjectedErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMockStorage()
	m.ListError = assert.AnError

	_, err := m.ListOptionPositions(ctx, "")
	assert.ErrorIs(t, err, assert.AnError)

	m.ListError = nil
	m.InsertError = assert.AnError
	assert.ErrorIs(t, m.InsertAlert(ctx, sampleAlert("a", time.Now())), assert.AnError)
	assert.Equal(t, 1, m.InsertAlertCalls())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, BackendJSON, filepath.Join(t.TempDir(), "advisor.json"))
	require.NoError(t, err)
	assert.IsType(t, &JSONStorage{}, store)
	require.NoError(t, store.Close())

	_, err = Open(ctx, "sqlite", "advisor.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown storage backend "sqlite"`)
}
