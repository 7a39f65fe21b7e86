// Package ledger persists content hashes per source record so unchanged
// records can skip remote writes on subsequent runs.
package ledger

import (
	"bufio"
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
)

// Type partitions the ledger by record kind.
type Type string

const (
	Orders Type = "orders"
	Drops  Type = "drops"
)

const separator = ":"

// Ledger maps (type, business id) to a content hash. The loaded set is
// read-only for the whole run; recorded hashes accumulate in a separate
// write set that replaces the file wholesale on Save. A run that dies
// before Save leaves the previous file untouched.
type Ledger struct {
	path        string
	loaded      map[Type]map[int64]string
	pending     map[Type]map[int64]string
	retryConfig retry.Config
}

// Open ensures the ledger file exists under dir and loads it.
func Open(dir, file string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	l := &Ledger{
		path:    filepath.Join(dir, file),
		loaded:  emptySet(),
		pending: emptySet(),
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}

	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		if err := os.WriteFile(l.path, nil, 0600); err != nil {
			return nil, fmt.Errorf("failed to create ledger file: %w", err)
		}
		return l, nil
	}

	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func emptySet() map[Type]map[int64]string {
	return map[Type]map[int64]string{
		Orders: {},
		Drops:  {},
	}
}

// load parses the line format: a type marker line ("orders" or "drops")
// followed by id:hash lines until the next marker or end of file.
func (l *Ledger) load() error {
	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	var current Type
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if id, hash, ok := strings.Cut(line, separator); ok {
			if _, known := l.loaded[current]; !known {
				// Entries before any marker are unattributable.
				continue
			}
			n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
			if err != nil {
				continue
			}
			l.loaded[current][n] = strings.TrimSpace(hash)
			continue
		}
		current = Type(line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	return nil
}

// Digest computes the content hash over the ordered field values. The same
// values in the same order always produce the same digest.
func Digest(values []string) string {
	sum := crc32.ChecksumIEEE([]byte(strings.Join(values, "")))
	return fmt.Sprintf("%x", sum)
}

// Changed reports whether the record needs a remote write: true when no
// hash was loaded for the key or the loaded hash differs from the digest
// of values.
func (l *Ledger) Changed(t Type, id int64, values []string) bool {
	hash, ok := l.loaded[t][id]
	if !ok {
		return true
	}
	return hash != Digest(values)
}

// Record stores the digest of values into the write set. The loaded set is
// never mutated.
func (l *Ledger) Record(t Type, id int64, values []string) {
	set, ok := l.pending[t]
	if !ok {
		return
	}
	set[id] = Digest(values)
}

// Loaded returns the hash loaded from file for the key, or "".
func (l *Ledger) Loaded(t Type, id int64) string {
	return l.loaded[t][id]
}

// Save serializes the write set, fully replacing the file. Written to a
// temp file in the same directory and renamed so a crash mid-save keeps
// the previous ledger. Called at most once per run.
func (l *Ledger) Save() error {
	var b strings.Builder
	for _, t := range []Type{Orders, Drops} {
		b.WriteString(string(t))
		b.WriteString("\n")
		ids := make([]int64, 0, len(l.pending[t]))
		for id := range l.pending[t] {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			fmt.Fprintf(&b, "%d%s%s\n", id, separator, l.pending[t][id])
		}
	}

	r := retry.New[struct{}](l.retryConfig)
	_, err := r.Do(context.Background(), func(ctx context.Context) (struct{}, error) {
		tmp := l.path + ".tmp"
		if err := os.WriteFile(tmp, []byte(b.String()), 0600); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, os.Rename(tmp, l.path)
	})
	if err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}
