package fleet

import (
	"testing"

	"github.com/protocorn/launchway/internal/config"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/protocorn/launchway/modules/vnc/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFleet(t *testing.T, maxSessions int) *Fleet {
	t.Helper()
	log, err := logger.New("error", "console")
	require.NoError(t, err)
	return New(config.VNCConfig{
		DisplayBase:   100,
		PortBase:      5900,
		WebSocketBase: 6080,
		MaxSessions:   maxSessions,
	}, config.SandboxConfig{HomeRoot: t.TempDir()}, NewSessionRepository(nil), log)
}

func TestAllocator(t *testing.T) {
	t.Run("allocations are disjoint", func(t *testing.T) {
		f := testFleet(t, 3)

		a, err := f.allocate("u1", "s1")
		require.NoError(t, err)
		b, err := f.allocate("u1", "s2")
		require.NoError(t, err)
		c, err := f.allocate("u2", "s3")
		require.NoError(t, err)

		displays := map[int]bool{a.DisplayNum: true, b.DisplayNum: true, c.DisplayNum: true}
		ports := map[int]bool{a.VNCPort: true, b.VNCPort: true, c.VNCPort: true}
		wsPorts := map[int]bool{a.WebSocketPort: true, b.WebSocketPort: true, c.WebSocketPort: true}
		homes := map[string]bool{a.SandboxHome: true, b.SandboxHome: true, c.SandboxHome: true}

		assert.Len(t, displays, 3)
		assert.Len(t, ports, 3)
		assert.Len(t, wsPorts, 3)
		assert.Len(t, homes, 3)
	})

	t.Run("smallest free index wins", func(t *testing.T) {
		f := testFleet(t, 3)

		a, _ := f.allocate("u1", "s1")
		b, _ := f.allocate("u1", "s2")
		assert.Equal(t, 0, a.Index)
		assert.Equal(t, 1, b.Index)

		f.free(a.Index)
		c, err := f.allocate("u1", "s3")
		require.NoError(t, err)
		assert.Equal(t, 0, c.Index)
		assert.Equal(t, 100, c.DisplayNum)
		assert.Equal(t, 5900, c.VNCPort)
		assert.Equal(t, 6080, c.WebSocketPort)
	})

	t.Run("full fleet denies allocation", func(t *testing.T) {
		f := testFleet(t, 1)

		_, err := f.allocate("u1", "s1")
		require.NoError(t, err)

		_, err = f.allocate("u1", "s2")
		assert.ErrorIs(t, err, model.ErrFleetFull)
	})

	t.Run("freeing out-of-range indexes is harmless", func(t *testing.T) {
		f := testFleet(t, 1)
		f.free(-1)
		f.free(10)
		_, err := f.allocate("u1", "s1")
		assert.NoError(t, err)
	})
}
