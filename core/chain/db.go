package chain

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/CharlotteKetzenberg/blockchain-voting/core"
	_ "github.com/mattn/go-sqlite3"
)

var dbLog = core.NewLogger("db")

func dbGetVersion(db *sql.DB) (int, error) {
	row := db.QueryRow("SELECT version FROM votechain_version ORDER BY version DESC LIMIT 1")
	if err := row.Err(); err != nil {
		return -1, fmt.Errorf("error checking database version: %w", err)
	}

	databaseVersion := -1
	row.Scan(&databaseVersion)

	return databaseVersion, nil
}

func dbMigrate(db *sql.DB, migrationIndex int, migrateFn func(tx *sql.Tx) error) error {
	version, err := dbGetVersion(db)
	if err != nil {
		return err
	}

	// Skip migration if the database is already at the target version.
	if migrationIndex <= version {
		return nil
	}

	dbLog.Printf("Running migration: %d\n", migrationIndex)
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := migrateFn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if _, err := tx.Exec("insert into votechain_version (version) values (?)", migrationIndex); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// OpenDB opens the node database, creating tables and running migrations as
// needed.
func OpenDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("create table if not exists votechain_version (version int)"); err != nil {
		return nil, fmt.Errorf("error checking database version: %w", err)
	}
	databaseVersion, err := dbGetVersion(db)
	if err != nil {
		return nil, err
	}
	dbLog.Printf("Database version: %d\n", databaseVersion)

	err = dbMigrate(db, 0, func(tx *sql.Tx) error {
		_, err := tx.Exec(`create table blocks (
			idx integer primary key,
			timestamp integer,
			data blob,
			previous_hash text,
			nonce integer,
			hash text
		)`)
		if err != nil {
			return fmt.Errorf("error creating 'blocks' table: %w", err)
		}

		if _, err := tx.Exec(`create index blocks_hash on blocks (hash)`); err != nil {
			return fmt.Errorf("error creating 'blocks_hash' index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = dbMigrate(db, 1, func(tx *sql.Tx) error {
		_, err := tx.Exec(`create table datastores (
			-- use k,v instead of key,value to avoid reserved word conflicts
			k TEXT PRIMARY KEY,
			v blob
		)`)
		if err != nil {
			return fmt.Errorf("error creating 'datastores' table: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Archive persists the canonical chain in the node database. Block data is
// stored as the JSON transaction array so the rows stay inspectable with
// plain sqlite tooling.
type Archive struct {
	db *sql.DB
}

func NewArchive(db *sql.DB) *Archive {
	return &Archive{db: db}
}

// SaveChain replaces the stored chain in one database transaction: the old
// chain stays fully visible until the new one commits.
func (a *Archive) SaveChain(blocks []Block) error {
	tx, err := a.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec("delete from blocks"); err != nil {
		tx.Rollback()
		return err
	}

	for i := range blocks {
		b := &blocks[i]
		data, err := json.Marshal(b.Data)
		if err != nil {
			tx.Rollback()
			return err
		}
		_, err = tx.Exec("insert into blocks (idx, timestamp, data, previous_hash, nonce, hash) values (?, ?, ?, ?, ?, ?)",
			b.Index, b.Timestamp, data, b.PreviousHash, b.Nonce, b.Hash)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// LoadChain reads the stored chain in index order. An empty archive yields
// a nil chain; malformed rows surface as a SerializationError.
func (a *Archive) LoadChain() ([]Block, error) {
	rows, err := a.db.Query("select idx, timestamp, data, previous_hash, nonce, hash from blocks order by idx asc")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		var b Block
		var data []byte
		if err := rows.Scan(&b.Index, &b.Timestamp, &data, &b.PreviousHash, &b.Nonce, &b.Hash); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &b.Data); err != nil {
			return nil, &SerializationError{What: fmt.Sprintf("stored block %d data", b.Index), Err: err}
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// DataStore is a generic interface for reading/writing persistent data to
// the database under a unique key, serialised with the JSON encoding.
type DataStore interface {
	PeerStore
}

// PeerStore caches the addresses of peers we have gossiped with.
type PeerStore struct {
	Peers []string `json:"peers"`
}

// LoadDataStore loads a data store from the database by key.
func LoadDataStore[T DataStore](db *sql.DB, key string) (*T, error) {
	buf := []byte("{}")
	err := db.QueryRow("SELECT v FROM datastores WHERE k = ?", key).Scan(&buf)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	var store T
	if err := json.Unmarshal(buf, &store); err != nil {
		return nil, err
	}
	return &store, nil
}

// SaveDataStore persists a data store to the database under the given key.
func SaveDataStore[T DataStore](db *sql.DB, key string, value T) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return err
	}

	_, err = db.Exec("INSERT INTO datastores (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v", key, buf)
	return err
}
