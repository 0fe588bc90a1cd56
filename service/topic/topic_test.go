package topic

import (
	"testing"

	"PPKitchen/tools/errs"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tp, err := Parse("session:42", "")
	require.NoError(t, err)
	assert.Equal(t, Topic{Resource: Session, ID: "42"}, tp)
	assert.Equal(t, "session:42", tp.String())
}

func TestParseKeepsColonsInID(t *testing.T) {
	tp, err := Parse("collection:a:b", "")
	require.NoError(t, err)
	assert.Equal(t, "a:b", tp.ID)
}

func TestParseDefaultNamespace(t *testing.T) {
	tp, err := Parse("abc123", Collection)
	require.NoError(t, err)
	assert.Equal(t, "collection:abc123", tp.String())

	tp, err = Parse("session:9", Collection)
	require.NoError(t, err)
	assert.Equal(t, Session, tp.Resource)
}

func TestParseInvalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "noprefix", ":1", "session:", "Session:1", "session:a b"} {
		_, err := Parse(raw, "")
		assert.True(t, errors.Is(err, errs.ErrInvalidTopic), "topic %q", raw)
	}
}
