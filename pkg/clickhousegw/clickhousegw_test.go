package clickhousegw

import (
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const columns = `
			agent      IPv6,
			int_in     UInt32,
			int_out    UInt32,
			ether_type UInt16,
			outer_vlan UInt16,
			inner_vlan UInt16,
			priority   UInt8,
			timestamp  DateTime,
			size       UInt64,
			packets    UInt64,
			samplerate UInt64
`

func TestGetCreateTableSchemaDDL(t *testing.T) {
	zookeeperPathPrefix := time.Now().Unix()

	tests := []struct {
		name        string
		cfg         *ClickhouseConfig
		isBaseTable bool
		want        string
	}{
		{
			name: "simple MergeTree",
			cfg: &ClickhouseConfig{
				Database: "test",
			},
			isBaseTable: true,
			want: `
		CREATE TABLE IF NOT EXISTS frames (` + columns + `		) ENGINE = MergeTree()
		PARTITION BY toStartOfTenMinutes(timestamp)
		ORDER BY (timestamp)
		TTL timestamp + INTERVAL 14 DAY
		SETTINGS index_granularity = 8192
	`,
		},
		{
			name: "sharded base table",
			cfg: &ClickhouseConfig{
				Database: "test",
				Cluster:  "test_cluster",
				Sharded:  true,
			},
			isBaseTable: true,
			want: fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS _test.frames_base ON CLUSTER test_cluster (`+columns+`		) ENGINE = ReplicatedMergeTree('/clickhouse/tables/{shard}/test/frames_%d', '{replica}')
		PARTITION BY toStartOfTenMinutes(timestamp)
		ORDER BY (timestamp)
		TTL timestamp + INTERVAL 14 DAY
		SETTINGS index_granularity = 8192
	`, zookeeperPathPrefix),
		},
		{
			name: "distributed table",
			cfg: &ClickhouseConfig{
				Database: "test",
				Cluster:  "test_cluster",
				Sharded:  true,
			},
			want: `
		CREATE TABLE IF NOT EXISTS frames ON CLUSTER test_cluster (` + columns + `		) ENGINE = Distributed(test_cluster, _test, frames_base, rand())
	`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := &ClickHouseGateway{
				cfg: test.cfg,
			}

			ddl := c.getCreateTableSchemaDDL(test.isBaseTable, zookeeperPathPrefix)
			assert.Equal(t, test.want, ddl)

			if strings.Contains(ddl, "Distributed(") {
				assert.NotContains(t, ddl, "PARTITION BY")
				assert.NotContains(t, ddl, "SETTINGS")
			}
		})
	}
}

func TestGetCreateDatabaseDDL(t *testing.T) {
	c := &ClickHouseGateway{
		cfg: &ClickhouseConfig{
			Database: "test",
			Cluster:  "test_cluster",
			Sharded:  true,
		},
	}

	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS _test ON CLUSTER test_cluster", c.getCreateDatabaseDDL())
}

func TestDSN(t *testing.T) {
	cfg := &ClickhouseConfig{
		Address:  "localhost:9000",
		User:     "default",
		Password: "s&cret",
		Database: "frames",
	}

	dsn := cfg.DSN()
	require.True(t, strings.HasPrefix(dsn, "tcp://localhost:9000?"))

	u, err := url.Parse(dsn)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "default", q.Get("username"))
	assert.Equal(t, "s&cret", q.Get("password"))
	assert.Equal(t, "frames", q.Get("database"))
}
