// Package session configures the admin session manager.
package session

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"

	"github.com/olegiv/visitrack/internal/store"
)

// Lifetime is the absolute lifetime of an admin session.
const Lifetime = 12 * time.Hour

// IdleTimeout ends admin sessions left unused.
const IdleTimeout = time.Hour

// New creates a session manager for the admin surface. SQLite databases
// hold sessions in the sessions table; other drivers keep them in memory.
func New(db *sql.DB, driver string, isDev bool) *scs.SessionManager {
	sm := scs.New()

	if driver == store.DriverSQLite {
		sm.Store = sqlite3store.New(db)
	} else {
		sm.Store = memstore.New()
	}

	sm.Lifetime = Lifetime
	sm.IdleTimeout = IdleTimeout
	sm.Cookie.Name = "visitrack_admin"
	sm.Cookie.Path = "/"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = !isDev // Secure cookies in production only
	if !isDev {
		sm.Cookie.Name = "__Host-visitrack_admin"
	}

	return sm
}
