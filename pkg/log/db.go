// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package log

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// The database holds one bucket per run, keyed by run id. A run bucket
// holds the run description under runKey and its logs under 8-byte
// sequence numbers, in the order they were logged.
const (
	dbAPIversion = "2"
	runKey       = "run"
)

const defaultMaxRuns = 50

// Run describes one invocation of the muxer.
type Run struct {
	ID     uint64
	Start  UnixMicro
	Input  string
	Output string
}

// Errors.
var (
	ErrNoRuns      = errors.New("no runs in log database")
	ErrRunNotFound = errors.New("run not found")
)

// NewDB returns a database which persists the logs of the last runs.
func NewDB(dbPath string, wg *sync.WaitGroup) *DB {
	return &DB{
		dbPath:  dbPath,
		maxRuns: defaultMaxRuns,

		wg:     wg,
		saveWG: &sync.WaitGroup{},
	}
}

// DB log database.
type DB struct {
	dbPath  string
	maxRuns int

	db  *bolt.DB
	wg  *sync.WaitGroup
	run uint64 // Current run, zero when only reading.

	// Wait for last log to be saved before losing db.
	saveWG *sync.WaitGroup
}

// Open opens the database and closes it when ctx is canceled.
func (logDB *DB) Open(ctx context.Context) error {
	dbOpts := &bolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bolt.Open(logDB.dbPath, 0o600, dbOpts)
	if err != nil {
		return fmt.Errorf("could not open database: %w: %v", err, logDB.dbPath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(dbAPIversion))
		return err
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("could not create bucket: %v, %w", dbAPIversion, err)
	}

	logDB.db = db

	logDB.wg.Add(1)
	go func() {
		<-ctx.Done()
		logDB.saveWG.Wait()
		db.Close()
		logDB.wg.Done()
	}()

	return nil
}

// Init opens the database and starts a new run. The oldest
// runs are deleted once there are more than maxRuns.
func (logDB *DB) Init(ctx context.Context, input, output string) error {
	if err := logDB.Open(ctx); err != nil {
		return err
	}

	return logDB.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(dbAPIversion))

		id, err := root.NextSequence()
		if err != nil {
			return fmt.Errorf("next run id: %w", err)
		}
		b, err := root.CreateBucket(encodeKey(id))
		if err != nil {
			return fmt.Errorf("create run bucket: %w", err)
		}

		run := Run{
			ID:     id,
			Start:  UnixMicro(time.Now().UnixNano() / 1000),
			Input:  input,
			Output: output,
		}
		rawRun, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		if err := b.Put([]byte(runKey), rawRun); err != nil {
			return err
		}
		logDB.run = id

		return pruneRuns(root, logDB.maxRuns)
	})
}

func pruneRuns(root *bolt.Bucket, maxRuns int) error {
	var ids [][]byte
	err := root.ForEach(func(k, _ []byte) error {
		ids = append(ids, append([]byte(nil), k...))
		return nil
	})
	if err != nil {
		return err
	}
	for len(ids) > maxRuns {
		if err := root.DeleteBucket(ids[0]); err != nil {
			return fmt.Errorf("delete run %d: %w", decodeKey(ids[0]), err)
		}
		ids = ids[1:]
	}
	return nil
}

// SaveLogs saves logs from the logger into the current run.
func (logDB *DB) SaveLogs(ctx context.Context, l *Logger) {
	feed, cancel := l.Subscribe()
	defer cancel()

	logDB.saveWG.Add(1)
	for {
		select {
		case <-ctx.Done():
			logDB.saveWG.Done()
			return
		case log := <-feed:
			if err := logDB.saveLog(log); err != nil {
				// Logging the failure would feed it back into this loop.
				fmt.Fprintf(os.Stderr, "could not save log: %v %v\n", log.Msg, err)
			}
		}
	}
}

func (logDB *DB) saveLog(log Log) error {
	value, err := json.Marshal(log)
	if err != nil {
		return err
	}

	return logDB.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(dbAPIversion)).Bucket(encodeKey(logDB.run))
		if b == nil {
			return fmt.Errorf("%w: %d", ErrRunNotFound, logDB.run)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(encodeKey(seq), value)
	})
}

// Runs returns the stored runs, newest first.
func (logDB *DB) Runs() ([]Run, error) {
	var runs []Run
	err := logDB.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(dbAPIversion)).Cursor()
		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			run, err := readRun(c.Bucket().Bucket(k))
			if err != nil {
				return err
			}
			runs = append(runs, *run)
		}
		return nil
	})
	return runs, err
}

func readRun(b *bolt.Bucket) (*Run, error) {
	var run Run
	if err := json.Unmarshal(b.Get([]byte(runKey)), &run); err != nil {
		return nil, fmt.Errorf("could not unmarshal run: %w", err)
	}
	return &run, nil
}

// Query selects the logs of one run. Nil filters match everything.
type Query struct {
	Run     uint64 // Zero for the latest run.
	Levels  []Level
	Sources []string
	Streams []string
	Limit   int // Zero for no limit.
}

// Query returns the run and its matching logs in the order they were logged.
func (logDB *DB) Query(q Query) (*Run, []Log, error) {
	var run *Run
	var logs []Log

	err := logDB.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(dbAPIversion))

		key := encodeKey(q.Run)
		if q.Run == 0 {
			key, _ = root.Cursor().Last()
			if key == nil {
				return ErrNoRuns
			}
		}
		b := root.Bucket(key)
		if b == nil {
			return fmt.Errorf("%w: %d", ErrRunNotFound, q.Run)
		}

		var err error
		run, err = readRun(b)
		if err != nil {
			return err
		}

		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if q.Limit != 0 && len(logs) >= q.Limit {
				return nil
			}
			if string(k) == runKey {
				continue
			}

			var log Log
			if err := json.Unmarshal(v, &log); err != nil {
				return fmt.Errorf("could not unmarshal log %d: %w", decodeKey(k), err)
			}
			if levelInLevels(log.Level, q.Levels) &&
				stringInStrings(log.Src, q.Sources) &&
				stringInStrings(log.Stream, q.Streams) {
				logs = append(logs, log)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return run, logs, nil
}

// LevelsUpTo returns the levels at least as severe as max.
func LevelsUpTo(max Level) []Level {
	levels := []Level{}
	for _, l := range []Level{LevelError, LevelWarning, LevelInfo, LevelDebug} {
		if l <= max {
			levels = append(levels, l)
		}
	}
	return levels
}

func levelInLevels(level Level, levels []Level) bool {
	if levels == nil {
		return true
	}
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}

func stringInStrings(s string, list []string) bool {
	if list == nil {
		return true
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func encodeKey(key uint64) []byte {
	output := make([]byte, 8)
	binary.BigEndian.PutUint64(output, key)
	return output
}

func decodeKey(key []byte) uint64 {
	if len(key) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key)
}
