package services

import (
	"dm-core/domain"
	"dm-core/repositories"
	"io"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// badgerGateway returns a gateway with u1..u4 already provisioned.
func badgerGateway(t *testing.T) repositories.Gateway {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gateway := repositories.NewGateway(db, silentLogger(), nil)
	users := NewUserService(silentLogger(), gateway)
	for _, id := range []domain.UserID{"u1", "u2", "u3", "u4"} {
		_, err := users.Ensure(t.Context(), domain.User{ID: id, Name: "user " + string(id)})
		require.NoError(t, err)
	}
	return gateway
}
