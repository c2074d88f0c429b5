package actiontable

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	t.Run("parses rows and ignores the index column", func(t *testing.T) {
		in := ",epoch,dVx,dVy,dVz\n" +
			"7,6599.96,1.5,0,-2\n" +
			"3,6600.0,0,0.25,0\n"

		table, err := Read(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, table, 2)
		assert.Equal(t, Row{Epoch: 6599.96, DVx: 1.5, DVy: 0, DVz: -2}, table[0])
		assert.Equal(t, Row{Epoch: 6600.0, DVy: 0.25}, table[1])
	})

	t.Run("header only yields an empty table", func(t *testing.T) {
		table, err := Read(strings.NewReader(",epoch,dVx,dVy,dVz\n"))
		require.NoError(t, err)
		assert.Empty(t, table)
	})

	t.Run("equal epochs are allowed", func(t *testing.T) {
		table, err := Read(strings.NewReader(",epoch,dVx,dVy,dVz\n0,6600,1,0,0\n1,6600,2,0,0\n"))
		require.NoError(t, err)
		assert.Len(t, table, 2)
	})

	malformed := map[string]string{
		"empty file":        "",
		"wrong field count": ",epoch,dVx,dVy,dVz\n0,6600,1,0\n",
		"bad index":         ",epoch,dVx,dVy,dVz\nx,6600,1,0,0\n",
		"bad number":        ",epoch,dVx,dVy,dVz\n0,6600,one,0,0\n",
		"non-finite":        ",epoch,dVx,dVy,dVz\n0,6600,NaN,0,0\n",
	}
	for name, in := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}

	t.Run("descending epochs are rejected", func(t *testing.T) {
		_, err := Read(strings.NewReader(",epoch,dVx,dVy,dVz\n0,6600.1,1,0,0\n1,6600.0,1,0,0\n"))
		assert.ErrorIs(t, err, ErrUnsorted)
	})
}

func TestWriteThenRead(t *testing.T) {
	table := Table{
		{Epoch: 6599.9512, DVx: 0.125, DVy: -3, DVz: 0},
		{Epoch: 6600.0003, DVx: 0, DVy: 0, DVz: 11.5},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, table))
	assert.True(t, strings.HasPrefix(buf.String(), ",epoch,dVx,dVy,dVz\n0,"))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, table, got)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.csv")
	table := Table{{Epoch: 6600, DVx: 1}}

	require.NoError(t, Save(path, table))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, table, got)

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestClone(t *testing.T) {
	table := Table{{Epoch: 1}}
	c := table.Clone()
	c[0].Epoch = 2
	assert.Equal(t, Table{{Epoch: 1}}, table)
}
