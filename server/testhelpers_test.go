package server

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/GoCodeAlone/overseer/assign"
	"github.com/GoCodeAlone/overseer/comms"
	"github.com/GoCodeAlone/overseer/config"
	"github.com/GoCodeAlone/overseer/deps"
	"github.com/GoCodeAlone/overseer/hub"
	"github.com/GoCodeAlone/overseer/orchestrator"
	"github.com/GoCodeAlone/overseer/store"
)

// newTestServer builds a server over a throwaway SQLite store with
// admin/secret credentials.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.Server.Addr = ":0"
	cfg.Auth = config.AuthConfig{
		AdminUser: "admin",
		AdminPass: string(hash),
		JWTSecret: "test-secret-key-1234567890",
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "overseer.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dm := deps.NewManager(st)
	dispatch := comms.NewInMemoryDispatcher()
	h := hub.New(logger)
	ctrl := orchestrator.New(st, dm, assign.NewScorer(assign.DefaultConfig()), dispatch, h, logger)

	s := New(cfg, "test", logger)
	s.SetController(ctrl)
	s.SetStore(st)
	s.SetDeps(dm)
	s.SetMessageLog(dispatch)
	s.SetHub(h)
	return s
}
