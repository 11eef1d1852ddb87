package serverdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"
)

var (
	matchesBucket = []byte("matches")
	historyBucket = []byte("history") // per-address sub-buckets, seq -> match id
	agentsBucket  = []byte("agents")
)

// BoltDB implements ServerDB on a single bbolt file.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (creating if needed) the archive at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{matchesBucket, historyBucket, agentsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Close() error { return b.db.Close() }

func (b *BoltDB) StoreMatch(_ context.Context, rec *MatchRecord) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		matches := tx.Bucket(matchesBucket)
		if matches == nil {
			return ErrMainBucketNotFound
		}
		key := []byte(rec.MatchID)
		if matches.Get(key) != nil {
			return ErrDuplicateEntry
		}
		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := matches.Put(key, val); err != nil {
			return err
		}

		history := tx.Bucket(historyBucket)
		for _, addr := range []string{rec.AgentA, rec.AgentB} {
			ab, err := history.CreateBucketIfNotExists([]byte(addr))
			if err != nil {
				return err
			}
			seq, err := ab.NextSequence()
			if err != nil {
				return err
			}
			if err := ab.Put(itob(seq), key); err != nil {
				return err
			}
		}

		if err := b.applyStats(tx, rec.AgentA, rec.PointsA, rec.PointsB, rec.ChoiceA); err != nil {
			return err
		}
		return b.applyStats(tx, rec.AgentB, rec.PointsB, rec.PointsA, rec.ChoiceB)
	})
}

// applyStats folds one match result into an address's aggregates.
func (b *BoltDB) applyStats(tx *bolt.Tx, addr string, points, oppPoints int, choice uint8) error {
	agents := tx.Bucket(agentsBucket)
	stats := &AgentStats{Address: addr}
	if raw := agents.Get([]byte(addr)); raw != nil {
		if err := json.Unmarshal(raw, stats); err != nil {
			return err
		}
	}
	stats.Matches++
	stats.Points += int64(points)
	if points > oppPoints {
		stats.Wins++
	}
	switch choice {
	case 1:
		stats.Splits++
	case 2:
		stats.Steals++
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return agents.Put([]byte(addr), raw)
}

func (b *BoltDB) FetchMatch(_ context.Context, matchID string) (*MatchRecord, error) {
	var rec *MatchRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		matches := tx.Bucket(matchesBucket)
		if matches == nil {
			return ErrMainBucketNotFound
		}
		raw := matches.Get([]byte(matchID))
		if raw == nil {
			return ErrMatchNotFound
		}
		rec = &MatchRecord{}
		return json.Unmarshal(raw, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (b *BoltDB) FetchMatchesByAddress(_ context.Context, address string, limit int) ([]*MatchRecord, error) {
	var out []*MatchRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		history := tx.Bucket(historyBucket)
		if history == nil {
			return ErrMainBucketNotFound
		}
		ab := history.Bucket([]byte(address))
		if ab == nil {
			return nil // no history yet
		}
		matches := tx.Bucket(matchesBucket)
		c := ab.Cursor()
		// Newest first.
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			raw := matches.Get(v)
			if raw == nil {
				continue
			}
			rec := &MatchRecord{}
			if err := json.Unmarshal(raw, rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BoltDB) UpdateMatchTxRef(_ context.Context, matchID, txRef string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		matches := tx.Bucket(matchesBucket)
		if matches == nil {
			return ErrMainBucketNotFound
		}
		raw := matches.Get([]byte(matchID))
		if raw == nil {
			return ErrMatchNotFound
		}
		rec := &MatchRecord{}
		if err := json.Unmarshal(raw, rec); err != nil {
			return err
		}
		rec.TxRef = txRef
		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return matches.Put([]byte(matchID), val)
	})
}

func (b *BoltDB) FetchAgentStats(_ context.Context, address string) (*AgentStats, error) {
	var stats *AgentStats
	err := b.db.View(func(tx *bolt.Tx) error {
		agents := tx.Bucket(agentsBucket)
		if agents == nil {
			return ErrMainBucketNotFound
		}
		raw := agents.Get([]byte(address))
		if raw == nil {
			return ErrAgentNotFound
		}
		stats = &AgentStats{}
		return json.Unmarshal(raw, stats)
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (b *BoltDB) Leaderboard(_ context.Context, limit int) ([]*AgentStats, error) {
	var out []*AgentStats
	err := b.db.View(func(tx *bolt.Tx) error {
		agents := tx.Bucket(agentsBucket)
		if agents == nil {
			return ErrMainBucketNotFound
		}
		return agents.ForEach(func(_, v []byte) error {
			stats := &AgentStats{}
			if err := json.Unmarshal(v, stats); err != nil {
				return err
			}
			out = append(out, stats)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].Address < out[j].Address
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
