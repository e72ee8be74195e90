package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
)

func noSleepPolicy(attempts int) (RetryPolicy, *[]time.Duration) {
	waits := []time.Duration{}
	return RetryPolicy{
		Attempts: attempts,
		Backoff:  10 * time.Millisecond,
		sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}, &waits
}

func TestRetryTx_RetriesContentionThenSucceeds(t *testing.T) {
	client := Wrap(newTestDB(t))
	policy, waits := noSleepPolicy(3)

	calls := 0
	err := client.RetryTx(context.Background(), policy, func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return &pq.Error{Code: "55P03", Message: "lock not available"}
		}
		return tx.Create(&testModel{Name: "after-retry"}).Error
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *waits, 2)
	assert.GreaterOrEqual(t, (*waits)[1], 20*time.Millisecond)
}

func TestRetryTx_ExhaustionReturnsBusy(t *testing.T) {
	client := Wrap(newTestDB(t))
	policy, _ := noSleepPolicy(2)

	calls := 0
	err := client.RetryTx(context.Background(), policy, func(*gorm.DB) error {
		calls++
		return &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBusy))
}

func TestRetryTx_DoesNotRetryDomainErrors(t *testing.T) {
	client := Wrap(newTestDB(t))
	policy, waits := noSleepPolicy(5)

	calls := 0
	err := client.RetryTx(context.Background(), policy, func(*gorm.DB) error {
		calls++
		return pkgerrors.InsufficientStock("p", 2)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
}

func TestIsLockContention(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"pgx lock timeout", &pgconn.PgError{Code: "55P03"}, true},
		{"pgx unique", &pgconn.PgError{Code: "23505"}, false},
		{"pq serialization", &pq.Error{Code: "40001"}, true},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, true},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, false},
		{"sqlite busy", errors.New("database is locked"), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsLockContention(tc.err))
		})
	}
}
