/*
 *
 *  * Licensed to the Apache Software Foundation (ASF) under one or more
 *  * contributor license agreements.  See the NOTICE file distributed with
 *  * this work for additional information regarding copyright ownership.
 *  * The ASF licenses this file to You under the Apache License, Version 2.0
 *  * (the "License"); you may not use this file except in compliance with
 *  * the License.  You may obtain a copy of the License at
 *  *
 *  *     http://www.apache.org/licenses/LICENSE-2.0
 *  *
 *  * Unless required by applicable law or agreed to in writing, software
 *  * distributed under the License is distributed on an "AS IS" BASIS,
 *  * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  * See the License for the specific language governing permissions and
 *  * limitations under the License.
 *
 */

// Package store keeps the catalog of topic names across restarts.
// Only names and their creation order are stored, never messages.
package store

import (
	"encoding/binary"
	"io/fs"
	"os"
	"sort"

	"github.com/pingcap/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const topicKeyPrefix = "topic:"

// TopicStore persists topic names with a monotonically increasing sequence
// number so the insertion order can be rebuilt.
type TopicStore interface {
	// Load returns the stored names ordered by sequence.
	Load() ([]string, error)
	Save(name string, seq uint64) error
	Close() error
}

type LevelDB struct {
	db       *leveldb.DB
	syncOpts *opt.WriteOptions
	path     string
}

// OpenLevelDB opens (or creates) a catalog under path.
func OpenLevelDB(path string) (*LevelDB, error) {
	if err := os.MkdirAll(path, fs.ModePerm); err != nil {
		return nil, errors.Annotatef(err, "create store dir %s", path)
	}
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, errors.Annotatef(err, "open leveldb %s", path)
	}
	return &LevelDB{db: db, path: path, syncOpts: &opt.WriteOptions{Sync: true}}, nil
}

// OpenMem opens a catalog that lives only in memory.
func OpenMem() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &LevelDB{db: db, syncOpts: &opt.WriteOptions{}}, nil
}

func (s *LevelDB) Path() string { return s.path }

func (s *LevelDB) Save(name string, seq uint64) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], seq)
	if err := s.db.Put([]byte(topicKeyPrefix+name), v[:], s.syncOpts); err != nil {
		return errors.Annotatef(err, "save topic %q", name)
	}
	return nil
}

func (s *LevelDB) Load() ([]string, error) {
	type entry struct {
		name string
		seq  uint64
	}
	var entries []entry

	it := s.db.NewIterator(util.BytesPrefix([]byte(topicKeyPrefix)), nil)
	defer it.Release()
	for it.Next() {
		v := it.Value()
		if len(v) != 8 {
			return nil, errors.Errorf("corrupt sequence for key %q", it.Key())
		}
		entries = append(entries, entry{
			name: string(it.Key()[len(topicKeyPrefix):]),
			seq:  binary.BigEndian.Uint64(v),
		})
	}
	if err := it.Error(); err != nil {
		return nil, errors.Trace(err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names, nil
}

func (s *LevelDB) Close() error {
	return s.db.Close()
}
