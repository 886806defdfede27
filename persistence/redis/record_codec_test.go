package redis

import (
	"testing"
	"time"

	"github.com/mohitkumar/mediaflow/model"
	"github.com/stretchr/testify/require"
)

func TestRecordCodec(t *testing.T) {
	var codec recordCodec[model.Job]
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	data, err := codec.encode(model.Job{Id: "j1", Status: model.JOB_STATUS_RUNNING, Version: 4, StartedAt: &started})
	require.NoError(t, err)

	job, err := codec.decode(data)
	require.NoError(t, err)
	require.Equal(t, int64(4), job.Version)
	require.True(t, started.Equal(*job.StartedAt))
	require.Nil(t, job.FinishedAt)

	_, err = codec.decode([]byte("{not json"))
	require.Error(t, err)
}
