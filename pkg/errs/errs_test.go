package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/navikt/bqinspect/pkg/errs"
	"github.com/stretchr/testify/assert"
)

func TestE(t *testing.T) {
	t.Parallel()

	errSentinel := errors.New("resource is gone")

	testCases := []struct {
		name        string
		err         error
		expectKind  errs.Kind
		expectMsg   string
		expectIs    error
		expectStack string
	}{
		{
			name:        "kind and message",
			err:         errs.E(errs.NotExist, errs.Op("Client.GetDataset"), errs.Str("dataset does not exist")),
			expectKind:  errs.NotExist,
			expectMsg:   "dataset does not exist",
			expectStack: "Client.GetDataset",
		},
		{
			name:       "wrapped sentinel stays reachable",
			err:        errs.E(errs.Database, errs.Op("Client.QueryPreview"), errSentinel),
			expectKind: errs.Database,
			expectMsg:  "resource is gone",
			expectIs:   errSentinel,
		},
		{
			name: "kind inherited through unclassified layers",
			err: errs.E(errs.Op("Service.ListTables"),
				errs.E(errs.Unauthorized, errs.Op("Client.GetTables"), errs.Str("permission denied"))),
			expectKind:  errs.Unauthorized,
			expectMsg:   "permission denied",
			expectStack: "Service.ListTables: Client.GetTables",
		},
		{
			name:       "kind found through fmt wrapping",
			err:        fmt.Errorf("running operation: %w", errs.E(errs.Unauthenticated, errs.Str("no credentials"))),
			expectKind: errs.Unauthenticated,
			expectMsg:  "running operation: no credentials",
		},
		{
			name:       "parameter annotation",
			err:        errs.E(errs.InvalidRequest, errs.Op("Service.GetSchema"), errs.Parameter("datasetID"), errs.Str("cannot be blank")),
			expectKind: errs.InvalidRequest,
			expectMsg:  "cannot be blank",
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expectMsg, tc.err.Error())
			assert.True(t, errs.KindIs(tc.expectKind, tc.err))
			assert.Equal(t, tc.expectKind, errs.KindOf(tc.err))

			if tc.expectIs != nil {
				assert.ErrorIs(t, tc.err, tc.expectIs)
			}

			if tc.expectStack != "" {
				assert.Equal(t, tc.expectStack, errs.OpStack(tc.err))
			}
		})
	}
}

func TestKindIsOnPlainError(t *testing.T) {
	t.Parallel()

	err := errors.New("plain")

	assert.False(t, errs.KindIs(errs.NotExist, err))
	assert.Equal(t, errs.Other, errs.KindOf(err))
}
