package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "notibot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)
}

func TestFileStoreAppend(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "deliveries.jsonl")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	now := time.Now()
	require.NoError(t, st.AppendDelivery(context.Background(), DeliveryRecord{
		At: now, Kind: "text", ChatID: 42, OK: true, TookMS: 12,
	}))
	require.NoError(t, st.AppendDelivery(context.Background(), DeliveryRecord{
		At: now, Kind: "photo", ChatID: 43, OK: false, Error: "chat not found", TookMS: 5,
	}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []deliveryLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l deliveryLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.NoError(t, sc.Err())

	require.Len(t, lines, 2)
	assert.Equal(t, "text", lines[0].Kind)
	assert.True(t, lines[0].OK)
	assert.Equal(t, int64(42), lines[0].ChatID)
	assert.Equal(t, "chat not found", lines[1].Error)
}

func TestFileStoreClosedAppendFails(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "deliveries.jsonl")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	assert.Error(t, st.AppendDelivery(context.Background(), DeliveryRecord{Kind: "text"}))
}
