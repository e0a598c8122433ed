package sessions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casualjim/skein/api"
	"github.com/casualjim/skein/stream"
)

func TestLocalSessionLifecycle(t *testing.T) {
	s := NewLocal()

	// Running before Open is a misuse error.
	err := s.Run(context.Background(), api.UnitFunc("u", func(context.Context, *stream.Stream, api.Streams) error {
		return nil
	}), stream.New(nil), api.NewStreams(nil))
	assert.Error(t, err)

	require.NoError(t, s.Open())
	require.NoError(t, s.Open(), "opening twice is a no-op")

	err = s.Run(context.Background(), api.UnitFunc("u", func(context.Context, *stream.Stream, api.Streams) error {
		return nil
	}), stream.New(nil), api.NewStreams(nil))
	assert.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "closing twice is a no-op")
	assert.Error(t, s.Open(), "a closed session cannot reopen")
}

func TestLocalSessionHadErrors(t *testing.T) {
	s := NewLocal()
	assert.False(t, s.HadErrors())
	s.SetHadErrors(true)
	assert.True(t, s.HadErrors())
}

func TestFactoryProducesIndependentSessions(t *testing.T) {
	f := NewFactory()

	a, err := f.New(api.IsolationFull)
	require.NoError(t, err)
	b, err := f.New(api.IsolationDefault)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())

	a.SetHadErrors(true)
	assert.False(t, b.HadErrors(), "session state never leaks between instances")
}
