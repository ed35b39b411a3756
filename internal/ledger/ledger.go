// Package ledger records real-network deployments in deployments/<network>.json.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const DEFAULT_DIR = "deployments"

var ErrAlreadyDeployed = errors.New("contract already deployed on this network")

type Record struct {
	ID          uuid.UUID        `json:"id"`
	Network     string           `json:"network"`
	ChainID     uint64           `json:"chainId"`
	Contract    common.Address   `json:"contract"`
	TxHash      common.Hash      `json:"txHash"`
	BlockNumber uint64           `json:"blockNumber"`
	Deployer    common.Address   `json:"deployer"`
	Variant     string           `json:"variant"`
	Provider    common.Address   `json:"provider"`
	Routers     []common.Address `json:"routers,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

type Ledger struct {
	dir string
}

func Open(dir string) (*Ledger, error) {
	if dir == "" {
		dir = DEFAULT_DIR
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger dir: %w", err)
	}
	return &Ledger{dir: dir}, nil
}

func (l *Ledger) path(network string) string {
	return filepath.Join(l.dir, strings.ToLower(network)+".json")
}

// Records returns every record for network, oldest first.
func (l *Ledger) Records(network string) ([]Record, error) {
	data, err := os.ReadFile(l.path(network))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode ledger %s: %w", l.path(network), err)
	}
	return records, nil
}

// Latest returns the newest record for network, or nil if there is none.
func (l *Ledger) Latest(network string) (*Record, error) {
	records, err := l.Records(network)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[len(records)-1], nil
}

// Append adds rec to its network's file, filling in ID and CreatedAt when unset.
func (l *Ledger) Append(rec Record) (Record, error) {
	if rec.Network == "" {
		return rec, errors.New("ledger record has no network")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	records, err := l.Records(rec.Network)
	if err != nil {
		return rec, err
	}
	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return rec, fmt.Errorf("failed to encode ledger: %w", err)
	}

	// Write then rename so a crash never leaves a truncated file.
	tmp := l.path(rec.Network) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return rec, fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path(rec.Network)); err != nil {
		return rec, fmt.Errorf("failed to write ledger: %w", err)
	}
	return rec, nil
}
