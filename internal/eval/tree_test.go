package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `{
  "legacyPackages": {
    "x86_64-linux": {
      "hello": {
        "type": "derivation",
        "name": "hello-2.12.1",
        "pname": "hello",
        "version": "2.12.1",
        "system": "x86_64-linux",
        "outputs": ["out"],
        "outputsToInstall": ["out"],
        "meta": {
          "description": "A program that produces a familiar, friendly greeting",
          "license": "GPL-3.0-or-later",
          "broken": false,
          "unfree": false
        }
      },
      "nodePackages": {
        "recurseForDerivations": true
      }
    }
  }
}`

func loadFixture(t *testing.T) *TreeCursor {
	t.Helper()
	cursor, err := ParseTree([]byte(fixture))
	require.NoError(t, err)
	return cursor
}

func TestTreeCursor_IsDerivation(t *testing.T) {
	root := loadFixture(t)

	system, err := root.GetAttr("legacyPackages")
	require.NoError(t, err)
	system, err = system.GetAttr("x86_64-linux")
	require.NoError(t, err)

	isDrv, err := system.IsDerivation()
	require.NoError(t, err)
	assert.False(t, isDrv)

	hello, err := system.GetAttr("hello")
	require.NoError(t, err)
	isDrv, err = hello.IsDerivation()
	require.NoError(t, err)
	assert.True(t, isDrv)
}

func TestTreeCursor_ChildrenSorted(t *testing.T) {
	root := loadFixture(t)
	system, err := root.GetAttr("legacyPackages")
	require.NoError(t, err)
	system, err = system.GetAttr("x86_64-linux")
	require.NoError(t, err)

	children, err := system.Children()
	require.NoError(t, err)
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"hello", "nodePackages"}, names)
}

func TestTreeCursor_Getters(t *testing.T) {
	root := loadFixture(t)
	hello, err := root.GetAttr("legacyPackages")
	require.NoError(t, err)
	hello, err = hello.GetAttr("x86_64-linux")
	require.NoError(t, err)
	hello, err = hello.GetAttr("hello")
	require.NoError(t, err)

	pname, err := hello.GetString("pname")
	require.NoError(t, err)
	assert.Equal(t, "hello", pname)

	outputs, err := hello.GetStringList("outputs")
	require.NoError(t, err)
	assert.Equal(t, []string{"out"}, outputs)

	meta, err := hello.GetAttr("meta")
	require.NoError(t, err)
	broken, err := meta.GetBool("broken")
	require.NoError(t, err)
	assert.False(t, broken)

	_, err = hello.GetAttr("nope")
	assert.ErrorIs(t, err, ErrNoSuchAttr)
	_, err = hello.GetBool("pname")
	assert.ErrorIs(t, err, ErrWrongType)
	_, err = hello.GetString("outputs")
	assert.ErrorIs(t, err, ErrWrongType)
	_, err = hello.GetStringList("pname")
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestTreeCursor_ScalarNode(t *testing.T) {
	cursor := NewTreeCursor("just a string")

	isDrv, err := cursor.IsDerivation()
	require.NoError(t, err)
	assert.False(t, isDrv)

	children, err := cursor.Children()
	require.NoError(t, err)
	assert.Empty(t, children)

	_, err = cursor.GetAttr("anything")
	assert.ErrorIs(t, err, ErrNoSuchAttr)
}
