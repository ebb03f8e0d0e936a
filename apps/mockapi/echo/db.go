package echoapi

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
)

var errEmailExists = errors.New("user with this email already exists.")

// Row is one stored record, as sent over the wire.
type Row map[string]interface{}

func (r Row) copy() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the row identity as a string.
func (r Row) ID() string { return core.IDOf(r["id"]).String() }

// Account is a user able to log in.
type Account struct {
	ID       int
	Name     string
	Email    string
	Role     string
	School   core.ID
	password []byte
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.MinCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	a.password = hash
	return nil
}

func (a Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.password, []byte(pwd))
}

func (a Account) Identity() user.Identity {
	return user.Identity{
		ID:     core.IDOf(a.ID),
		Name:   a.Name,
		Email:  a.Email,
		Role:   a.Role,
		School: a.School,
	}
}

type table struct {
	seq  int
	rows map[int]Row
}

// DB is an in-memory store of accounts and resource tables; safe for concurrent use.
type DB struct {
	mu       sync.RWMutex
	accSeq   int
	accounts map[int]*Account
	tables   map[string]*table
}

func NewDB() *DB {
	return &DB{accounts: make(map[int]*Account), tables: make(map[string]*table)}
}

// AddAccount stores acc with the hashed pwd; emails are unique (case insensitive).
func (db *DB) AddAccount(acc Account, pwd string) (Account, error) {
	acc.Email = strings.ToLower(strings.TrimSpace(acc.Email))
	if err := acc.SetPassword(pwd); err != nil {
		return Account{}, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	for _, a := range db.accounts {
		if a.Email == acc.Email {
			return Account{}, errEmailExists
		}
	}
	db.accSeq++
	acc.ID = db.accSeq
	db.accounts[acc.ID] = &acc
	return acc, nil
}

func (db *DB) Account(id int) (Account, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if a, ok := db.accounts[id]; ok {
		return *a, true
	}
	return Account{}, false
}

func (db *DB) AccountByEmail(email string) (Account, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, a := range db.accounts {
		if a.Email == email {
			return *a, true
		}
	}
	return Account{}, false
}

func (db *DB) table(name string) *table {
	t, ok := db.tables[name]
	if !ok {
		t = &table{rows: make(map[int]Row)}
		db.tables[name] = t
	}
	return t
}

// Insert stores row under the next id of name and returns the stored copy.
func (db *DB) Insert(name string, row Row) Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	t := db.table(name)
	t.seq++
	stored := row.copy()
	stored["id"] = t.seq
	t.rows[t.seq] = stored
	return stored.copy()
}

// All returns the rows of name ordered by id.
func (db *DB) All(name string) []Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.tables[name]
	if !ok {
		return []Row{}
	}
	ids := make([]int, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, t.rows[id].copy())
	}
	return rows
}

// Filter returns the rows of name accepted by keep, ordered by id.
func (db *DB) Filter(name string, keep func(Row) bool) []Row {
	rows := make([]Row, 0)
	for _, r := range db.All(name) {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return rows
}

func (db *DB) Get(name string, id int) (Row, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if t, ok := db.tables[name]; ok {
		if r, ok := t.rows[id]; ok {
			return r.copy(), true
		}
	}
	return nil, false
}

// Update merges fields into the row; the id never changes.
func (db *DB) Update(name string, id int, fields Row) (Row, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.tables[name]
	if !ok {
		return nil, false
	}
	r, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	for k, v := range fields {
		if k != "id" {
			r[k] = v
		}
	}
	return r.copy(), true
}

func (db *DB) Delete(name string, id int) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if t, ok := db.tables[name]; ok {
		if _, ok := t.rows[id]; ok {
			delete(t.rows, id)
			return true
		}
	}
	return false
}

// sameID compares identities that may be held as numbers or strings.
func sameID(v interface{}, id string) bool {
	return id != "" && core.IDOf(v).String() == id
}

// containsID reports whether the list value v holds id.
func containsID(v interface{}, id string) bool {
	switch list := v.(type) {
	case []interface{}:
		for _, item := range list {
			if sameID(item, id) {
				return true
			}
		}
	case []core.ID:
		for _, item := range list {
			if item.String() == id {
				return true
			}
		}
	case []string:
		for _, item := range list {
			if item == id {
				return true
			}
		}
	}
	return false
}
