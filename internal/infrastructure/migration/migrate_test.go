package migration

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatusOf(t *testing.T) {
	available := []uint{1, 2, 5}

	tests := []struct {
		name    string
		version uint
		dirty   bool
		want    Status
	}{
		{"empty schema", 0, false, Status{Version: 0, Latest: 5, Pending: 3}},
		{"partially applied", 2, false, Status{Version: 2, Latest: 5, Pending: 1}},
		{"up to date", 5, false, Status{Version: 5, Latest: 5}},
		{"dirty after failed step", 2, true, Status{Version: 2, Dirty: true, Latest: 5, Pending: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.version, tt.dirty, available))
		})
	}

	assert.Equal(t, Status{Version: 3}, statusOf(3, false, nil))
}

func TestVersions(t *testing.T) {
	source := fstest.MapFS{
		"000001_init_order_sync.up.sql":    {Data: []byte("SELECT 1;")},
		"000001_init_order_sync.down.sql":  {Data: []byte("SELECT 1;")},
		"000010_listing_index.up.sql":      {Data: []byte("SELECT 1;")},
		"000010_listing_index.down.sql":    {Data: []byte("SELECT 1;")},
		"000002_inventory_ledger.up.sql":   {Data: []byte("SELECT 1;")},
		"000002_inventory_ledger.down.sql": {Data: []byte("SELECT 1;")},
	}

	versions, err := Versions(source)
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 10}, versions)
}

func TestVersions_EmptySource(t *testing.T) {
	versions, err := Versions(fstest.MapFS{})
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestMigrateLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := migrateLogger{logger: zap.New(core)}

	l.Printf("Start buffering %v/u %s\n", 2, "inventory_ledger")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Start buffering 2/u inventory_ledger", logs.All()[0].Message)
	assert.False(t, l.Verbose())

	debugCore, _ := observer.New(zap.DebugLevel)
	assert.True(t, migrateLogger{logger: zap.New(debugCore)}.Verbose())
}
