package main

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/united-manufacturing-hub/sample-relay/pkg/datamodel"
)

func CreateMockConnection(t *testing.T) (*Connection, pgxmock.PgxPoolIface) {
	mocked, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("Failed to create mock connection: %v", err)
	}
	t.Cleanup(mocked.Close)
	return &Connection{db: mocked}, mocked
}

func TestInsertSample(t *testing.T) {
	c, mock := CreateMockConnection(t)
	sample := datamodel.Sample{
		ID:           "s-1",
		UserID:       "u-1",
		DeviceID:     "d-1",
		Measurements: []datamodel.Measurement{{Source: "cpu", Name: "usage_percent", Level: 3}},
		Value:        datamodel.Float64Ptr(42),
		TimestampMs:  1700000000000,
	}

	mock.ExpectExec(`INSERT INTO sample`).
		WithArgs("s-1", "u-1", "d-1", sample.Value, sample.Valid, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, c.InsertSample(context.Background(), sample))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSampleError(t *testing.T) {
	c, mock := CreateMockConnection(t)
	mock.ExpectExec(`INSERT INTO sample`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := c.InsertSample(context.Background(), datamodel.Sample{ID: "s-1"})
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetSampleValid(t *testing.T) {
	c, mock := CreateMockConnection(t)
	mock.ExpectExec(`UPDATE sample SET valid = \$2 WHERE id = \$1`).
		WithArgs("s-1", true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE sample SET valid = \$2 WHERE id = \$1`).
		WithArgs("missing", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.NoError(t, c.SetSampleValid(context.Background(), "s-1", true))
	assert.ErrorIs(t, c.SetSampleValid(context.Background(), "missing", false), pgx.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDevice(t *testing.T) {
	c, mock := CreateMockConnection(t)
	mock.ExpectExec(`INSERT INTO device`).
		WithArgs("d-1", "abc").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, c.UpsertDevice(context.Background(), datamodel.RegisterDeviceRequest{DeviceID: "d-1", Hostname: "abc"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkedUser(t *testing.T) {
	c, mock := CreateMockConnection(t)
	mock.ExpectQuery(`SELECT u.id, u.name, u.configured`).
		WithArgs("d-1").
		WillReturnRows(mock.NewRows([]string{"id", "name", "configured"}).AddRow("u-1", "Ada", true))
	mock.ExpectQuery(`SELECT u.id, u.name, u.configured`).
		WithArgs("d-2").
		WillReturnError(pgx.ErrNoRows)

	user, err := c.LinkedUser(context.Background(), "d-1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, datamodel.User{ID: "u-1", Name: "Ada", Configured: true}, *user)

	user, err = c.LinkedUser(context.Background(), "d-2")
	assert.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheck(t *testing.T) {
	c, mock := CreateMockConnection(t)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	assert.NoError(t, c.HealthCheck())
	assert.Error(t, c.HealthCheck())
	assert.NoError(t, mock.ExpectationsWereMet())
}
