package sqldb

import (
	"embed"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"
)

// RawSQLStore holds loaded statements keyed by "<group>.<name>"
type RawSQLStore struct {
	mu    sync.RWMutex
	stmts map[string]string
}

func NewRawStore() *RawSQLStore {
	return &RawSQLStore{stmts: make(map[string]string)}
}

func (s *RawSQLStore) Set(key string, rawStmt string) {
	s.mu.Lock()
	s.stmts[key] = rawStmt
	s.mu.Unlock()
}

func (s *RawSQLStore) Get(key string) (string, bool) {
	s.mu.RLock()
	stmt, exists := s.stmts[key]
	s.mu.RUnlock()
	return stmt, exists
}

func (s *RawSQLStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stmts)
}

type StoreGroupedStmtKey struct {
	Group    string
	StmtName string
}

func (k StoreGroupedStmtKey) String() string {
	return k.Group + "." + k.StmtName
}

type GroupFS struct {
	Group string
	FS    embed.FS
}

var (
	groupsMu         sync.Mutex
	RawStoreRegistry []GroupFS
)

// RegisterGroup registers the `sql` dir of fs under group.
// Call from init() of the package owning the statements.
func RegisterGroup(fs embed.FS, group string) {
	groupsMu.Lock()
	RawStoreRegistry = append(RawStoreRegistry, GroupFS{FS: fs, Group: group})
	groupsMu.Unlock()
}

// LoadRawStmtsToStore loads every registered group for dbtype.
// "<name>.<dbtype>" is used verbatim and wins over "<name>.sql", whose '?' placeholders
// are rewritten for placeholderPrefix.
func LoadRawStmtsToStore(store *RawSQLStore, dbtype string, placeholderPrefix byte) error {
	groupsMu.Lock()
	groups := append([]GroupFS(nil), RawStoreRegistry...)
	groupsMu.Unlock()

	stmtCnt := 0
	for _, g := range groups {
		n, err := loadGroup(store, g, dbtype, placeholderPrefix)
		if err != nil {
			return fmt.Errorf("sql group %q: %w", g.Group, err)
		}
		stmtCnt += n
	}
	log.Printf("[INFO][DB] %d %s raw stmts loaded for %d groups", stmtCnt, dbtype, len(groups))
	return nil
}

func loadGroup(store *RawSQLStore, g GroupFS, dbtype string, placeholderPrefix byte) (int, error) {
	files, err := g.FS.ReadDir("sql")
	if err != nil {
		return 0, fmt.Errorf("read embedded `sql` dir: %w", err)
	}
	loaded := map[string]bool{}
	for _, pass := range []string{dbtype, "sql"} {
		for _, f := range files {
			ext := path.Ext(f.Name())
			name := strings.TrimSuffix(f.Name(), ext)
			if f.IsDir() || ext != "."+pass || loaded[name] {
				continue
			}
			data, err := g.FS.ReadFile(path.Join("sql", f.Name()))
			if err != nil {
				return 0, fmt.Errorf("read %s: %w", f.Name(), err)
			}
			stmt := string(data)
			if pass == "sql" {
				stmt = ReplaceStaticPlaceholders(stmt, placeholderPrefix)
			}
			store.Set(StoreGroupedStmtKey{Group: g.Group, StmtName: name}.String(), stmt)
			loaded[name] = true
		}
	}
	return len(loaded), nil
}
