package clickhousegw

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/bio-routing/framehouse/pkg/models/frame"
	"github.com/pkg/errors"

	"github.com/ClickHouse/clickhouse-go"
	log "github.com/sirupsen/logrus"
)

const tableName = "frames"

// mergeTreeClauses apply to MergeTree family engines only
const mergeTreeClauses = `
		PARTITION BY toStartOfTenMinutes(timestamp)
		ORDER BY (timestamp)
		TTL timestamp + INTERVAL 14 DAY
		SETTINGS index_granularity = 8192`

// ClickhouseConfig represents a clickhouse client config
type ClickhouseConfig struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Cluster  string `yaml:"cluster"`
	Sharded  bool   `yaml:"sharded"`
}

// DSN returns the data source name of the clickhouse-go driver
func (cfg *ClickhouseConfig) DSN() string {
	q := url.Values{}
	q.Set("username", cfg.User)
	q.Set("password", cfg.Password)
	q.Set("database", cfg.Database)
	q.Set("read_timeout", "10")
	q.Set("write_timeout", "20")

	return fmt.Sprintf("tcp://%s?%s", cfg.Address, q.Encode())
}

// ClickHouseGateway stores aggregated frame records in clickhouse
type ClickHouseGateway struct {
	cfg *ClickhouseConfig
	db  *sql.DB
}

// New connects to clickhouse and creates the frames table if it does not exist
func New(cfg *ClickhouseConfig) (*ClickHouseGateway, error) {
	db, err := sql.Open("clickhouse", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "sql.Open failed")
	}

	err = db.Ping()
	if err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			log.WithFields(log.Fields{
				"code":        exception.Code,
				"stack_trace": exception.StackTrace,
			}).Error(exception.Message)
		}

		db.Close()
		return nil, errors.Wrap(err, "Ping failed")
	}

	c := &ClickHouseGateway{
		cfg: cfg,
		db:  db,
	}

	err = c.createTables()
	if err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

func (c *ClickHouseGateway) createTables() error {
	zookeeperPathPrefix := time.Now().Unix()

	if c.cfg.Sharded {
		_, err := c.db.Exec(c.getCreateDatabaseDDL())
		if err != nil {
			return errors.Wrap(err, "Unable to create base database")
		}

		_, err = c.db.Exec(c.getCreateTableSchemaDDL(true, zookeeperPathPrefix))
		if err != nil {
			return errors.Wrap(err, "Unable to create base table")
		}
	}

	_, err := c.db.Exec(c.getCreateTableSchemaDDL(false, zookeeperPathPrefix))
	if err != nil {
		return errors.Wrap(err, "Unable to create table")
	}

	return nil
}

// getCreateDatabaseDDL returns the DDL of the database holding the per shard base tables
func (c *ClickHouseGateway) getCreateDatabaseDDL() string {
	return fmt.Sprintf("CREATE DATABASE IF NOT EXISTS _%s ON CLUSTER %s", c.cfg.Database, c.cfg.Cluster)
}

// getCreateTableSchemaDDL returns the DDL of the frames table. A sharded setup gets a replicated
// base table per shard plus a distributed table on top.
func (c *ClickHouseGateway) getCreateTableSchemaDDL(isBaseTable bool, zookeeperPathPrefix int64) string {
	name := tableName
	engine := "MergeTree()"
	storage := mergeTreeClauses

	if c.cfg.Sharded {
		if isBaseTable {
			name = fmt.Sprintf("_%s.%s_base ON CLUSTER %s", c.cfg.Database, tableName, c.cfg.Cluster)
			engine = fmt.Sprintf("ReplicatedMergeTree('/clickhouse/tables/{shard}/%s/%s_%d', '{replica}')", c.cfg.Database, tableName, zookeeperPathPrefix)
		} else {
			name = fmt.Sprintf("%s ON CLUSTER %s", tableName, c.cfg.Cluster)
			engine = fmt.Sprintf("Distributed(%s, _%s, %s_base, rand())", c.cfg.Cluster, c.cfg.Database, tableName)
			storage = ""
		}
	}

	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
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
		) ENGINE = %s%s
	`, name, engine, storage)
}

// Insert inserts frame records into clickhouse
func (c *ClickHouseGateway) Insert(frames []*frame.Frame) error {
	tx, err := c.db.Begin()
	if err != nil {
		return errors.Wrap(err, "Begin failed")
	}

	stmt, err := tx.Prepare("INSERT INTO " + tableName + " (agent, int_in, int_out, ether_type, outer_vlan, inner_vlan, priority, timestamp, size, packets, samplerate) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "Prepare failed")
	}

	defer stmt.Close()

	for _, fr := range frames {
		_, err := stmt.Exec(
			fr.Agent.ToNetIP(),
			fr.IntIn,
			fr.IntOut,
			fr.EtherType,
			fr.OuterVLAN,
			fr.InnerVLAN,
			fr.Priority,
			time.Unix(fr.Timestamp, 0),
			fr.Size,
			fr.Packets,
			fr.Samplerate,
		)
		if err != nil {
			tx.Rollback()
			return errors.Wrap(err, "Exec failed")
		}
	}

	err = tx.Commit()
	if err != nil {
		return errors.Wrap(err, "Commit failed")
	}

	return nil
}

// Close closes the database connection
func (c *ClickHouseGateway) Close() error {
	return c.db.Close()
}
