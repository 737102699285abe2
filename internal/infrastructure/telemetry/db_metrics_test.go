package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"gorm.io/gorm"
)

func TestRegisterDBMetrics_Disabled(t *testing.T) {
	db := openListingsDB(t)
	disabled, err := NewMeterProvider(context.Background(), MetricsConfig{}, nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		mp   *MeterProvider
		cfg  DBMetricsConfig
	}{
		{"config disabled", disabled, DBMetricsConfig{}},
		{"nil provider", nil, DBMetricsConfig{Enabled: true}},
		{"provider disabled", disabled, DBMetricsConfig{Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := RegisterDBMetrics(db, tt.mp, tt.cfg, nil)
			require.NoError(t, err)
			assert.Nil(t, m)
		})
	}
	assert.Nil(t, db.Callback().Create().Get("ordersync_metrics:after_create"))
}

func TestDBMetrics_RecordQuery(t *testing.T) {
	reader, provider := newManualMeter(t)
	ctx := context.Background()

	m, err := NewDBMetrics(provider.Meter("ordersync.db"), DBMetricsConfig{SlowQueryThreshold: 100 * time.Millisecond}, nil)
	require.NoError(t, err)

	m.RecordQuery(ctx, "SELECT", "orders", 5*time.Millisecond, nil)
	m.RecordQuery(ctx, "SELECT", "orders", time.Millisecond, gorm.ErrRecordNotFound)
	m.RecordQuery(ctx, "UPDATE", "orders", 300*time.Millisecond, errors.New("deadlock detected"))
	m.RecordQuery(ctx, "OTHER", "", time.Second, nil)

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, rm, "db_query_total", AttrDBOperation.String("SELECT")))
	assert.Equal(t, int64(0), sumFor(t, rm, "db_query_errors_total", AttrDBOperation.String("SELECT")))
	assert.Equal(t, int64(1), sumFor(t, rm, "db_query_errors_total", AttrDBOperation.String("UPDATE")))
	assert.Equal(t, int64(1), sumFor(t, rm, "db_slow_query_total", AttrDBTable.String("orders")))
	assert.Equal(t, int64(1), sumFor(t, rm, "db_slow_query_total", AttrDBTable.String("unknown")))
	assert.True(t, findMetric(rm, "db_query_duration_seconds"))
}

func TestDBMetrics_StatementHooks(t *testing.T) {
	reader, provider := newManualMeter(t)
	db := openListingsDB(t)
	meter := provider.Meter("ordersync.db")

	m, err := NewDBMetrics(meter, DBMetricsConfig{SlowQueryThreshold: time.Nanosecond}, nil)
	require.NoError(t, err)
	require.NoError(t, registerStatementHooks(db, "ordersync_metrics", m.afterStatement))

	require.NoError(t, db.Create(&listingRow{SKU: "SKU-BLUE-7"}).Error)
	var row listingRow
	require.NoError(t, db.First(&row, "sku = ?", "SKU-BLUE-7").Error)
	require.Error(t, db.First(&row, "sku = ?", "SKU-NONE").Error)
	require.Error(t, db.Exec(`INSERT INTO order_ledger (id) VALUES (1)`).Error)

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, rm, "db_query_total", AttrDBOperation.String("INSERT")))
	assert.Equal(t, int64(2), sumFor(t, rm, "db_query_total", AttrDBOperation.String("SELECT")))
	assert.Equal(t, int64(1), sumFor(t, rm, "db_query_errors_total", AttrDBOperation.String("INSERT")))
	assert.Equal(t, int64(0), sumFor(t, rm, "db_query_errors_total", AttrDBOperation.String("SELECT")))
	assert.Equal(t, int64(3), sumFor(t, rm, "db_slow_query_total", AttrDBTable.String("platform_listings")))
}

func TestDBMetrics_ObservePool(t *testing.T) {
	reader, provider := newManualMeter(t)
	db := openListingsDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	meter := provider.Meter("ordersync.db")

	m, err := NewDBMetrics(meter, DBMetricsConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, m.ObservePool(meter, sqlDB))

	rm := collect(t, reader)
	maxConns, ok := metricByName(rm, "db_pool_connections_max")
	require.True(t, ok)
	gauge, ok := maxConns.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(1), gauge.DataPoints[0].Value)

	assert.True(t, findMetric(rm, "db_pool_connections"))
	assert.True(t, findMetric(rm, "db_pool_wait_total"))

	assert.NotPanics(t, func() {
		m.Stop()
		m.Stop()
	})
}

func TestDBMetrics_StopWithoutPool(t *testing.T) {
	_, provider := newManualMeter(t)
	m, err := NewDBMetrics(provider.Meter("ordersync.db"), DBMetricsConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, m.slowThreshold)
	assert.NotPanics(t, m.Stop)
}
