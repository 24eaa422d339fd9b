// Package journal keeps an append-only record of broadcast transactions
// and their receipts in a local Pebble database. It lets receipt lookups
// for already-confirmed hashes skip the RPC round trip; it is not an order
// persistence layer (orders live only in process memory).
package journal

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"
)

// Entry is one recorded broadcast and its eventual receipt.
type Entry struct {
	TxHash        string   `json:"txHash"`
	OrderID       string   `json:"orderId"`
	Kind          string   `json:"kind"` // "execute" or "cancel"
	BlockNumber   uint64   `json:"blockNumber"`
	GasUsed       uint64   `json:"gasUsed"`
	GasPrice      *big.Int `json:"gasPrice"`
	Success       bool     `json:"success"`
	Confirmations uint64   `json:"confirmations"`
	RecordedAt    int64    `json:"recordedAt"` // epoch millis
}

type Journal struct {
	db *pebble.DB
}

func Open(path string) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal at %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// keys: t:<tx-hash>, o:<order-id> -> tx-hash
func kTx(hash string) []byte  { return append([]byte("t:"), hash...) }
func kOrder(id string) []byte { return append([]byte("o:"), id...) }

// Record persists the entry, indexed by both tx hash and order id.
func (j *Journal) Record(e Entry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	batch := j.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(kTx(e.TxHash), val, nil); err != nil {
		return err
	}
	if e.OrderID != "" {
		if err := batch.Set(kOrder(e.OrderID), []byte(e.TxHash), nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit journal entry: %w", err)
	}
	return nil
}

// ByTxHash returns the recorded entry, or false when the hash is unknown.
func (j *Journal) ByTxHash(hash string) (Entry, bool, error) {
	val, closer, err := j.db.Get(kTx(hash))
	if err != nil {
		if err == pebble.ErrNotFound {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	defer closer.Close()

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode journal entry: %w", err)
	}
	return e, true, nil
}

// ByOrderID resolves the order's last broadcast hash and returns its entry.
func (j *Journal) ByOrderID(orderID string) (Entry, bool, error) {
	val, closer, err := j.db.Get(kOrder(orderID))
	if err != nil {
		if err == pebble.ErrNotFound {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	hash := string(val)
	closer.Close()
	return j.ByTxHash(hash)
}
