package sessionvalkey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/connector-manager/internal/serviceerr"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{name: "keeps prefix", prefix: "test-prefix", want: "test-prefix"},
		{name: "trims trailing colon from prefix", prefix: "test-prefix:", want: "test-prefix"},
		{name: "trims only last trailing colon", prefix: "test:prefix:", want: "test:prefix"},
		{name: "handles empty prefix", prefix: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(client, tt.prefix)
			assert.Equal(t, tt.want, s.prefix)
			assert.NotNil(t, s.valkey)
		})
	}
}

func TestStoreKey(t *testing.T) {
	s := newStore(client, "prefix")

	assert.Equal(t, "prefix:state:sess-1:mailchimp", s.key(objectTypeState, stateID("sess-1", "mailchimp")))
	assert.Equal(t, "prefix:login:sess-1", s.key(objectTypeLogin, "sess-1"))
}

func TestStoreEncodeDecode(t *testing.T) {
	s := newStore(client, "prefix")

	_, err := s.encode(make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshaling json")

	var decoded map[string]string
	err = s.decode([]byte(`{invalid json}`), &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshaling json")
}

func TestStoreSetGetTakeDestroy(t *testing.T) {
	ctx := t.Context()
	s := newStore(client, "store-test-"+time.Now().Format("150405.000000"))

	type data struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, objectTypeLogin, "id-1", data{ID: "1", Name: "one"}, time.Minute))

		var got data
		require.NoError(t, s.Get(ctx, objectTypeLogin, "id-1", &got))
		assert.Equal(t, data{ID: "1", Name: "one"}, got)
	})

	t.Run("get non-existent key", func(t *testing.T) {
		var got data
		err := s.Get(ctx, objectTypeLogin, "missing", &got)
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})

	t.Run("take returns the value only once", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, objectTypeState, "id-2", data{ID: "2"}, time.Minute))

		var got data
		require.NoError(t, s.Take(ctx, objectTypeState, "id-2", &got))
		assert.Equal(t, "2", got.ID)

		err := s.Take(ctx, objectTypeState, "id-2", &got)
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})

	t.Run("destroy", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, objectTypeLogin, "id-3", data{ID: "3"}, 0))
		require.NoError(t, s.Destroy(ctx, objectTypeLogin, "id-3"))

		err := s.Destroy(ctx, objectTypeLogin, "id-3")
		assert.ErrorIs(t, err, serviceerr.ErrNotFound)
	})

	t.Run("set with expiration expires", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, objectTypeState, "id-4", data{ID: "4"}, 500*time.Millisecond))

		assert.Eventually(t, func() bool {
			var got data
			return s.Get(ctx, objectTypeState, "id-4", &got) != nil
		}, 3*time.Second, 100*time.Millisecond)
	})
}
