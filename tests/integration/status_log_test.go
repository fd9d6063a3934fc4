//go:build integration

package integration

import (
	"context"
	"testing"

	pg "github.com/bissquit/uptime-garden/internal/pkg/postgres"
	"github.com/bissquit/uptime-garden/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusLog_AppendOnly(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	svc := createService(t, client, testutil.RandomSlug("org"), "Ledger")

	tests := []struct {
		name  string
		query string
	}{
		{"update", `UPDATE service_status_log SET status_to = 'major_outage' WHERE service_id = $1`},
		{"delete", `DELETE FROM service_status_log WHERE service_id = $1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testDB.Exec(ctx, tt.query, svc.ID)
			require.Error(t, err)
			assert.True(t, pg.HasCode(err, pg.CodeRestrictViolation), "unexpected error: %v", err)
			assert.Contains(t, err.Error(), "append-only")
		})
	}

	_, err := testDB.Exec(ctx, `TRUNCATE service_status_log CASCADE`)
	require.Error(t, err)

	page := getStatusLog(t, client, svc.ID)
	assert.Equal(t, 1, page.Total)
}

func TestStatusLog_Pagination(t *testing.T) {
	client := newTestClient(t)
	orgID := testutil.RandomSlug("org")
	svc := createService(t, client, orgID, "Paged")

	incident := createIncident(t, client, orgID, "low", svc.ID)
	updateIncident(t, client, incident.ID, map[string]any{"severity": "medium"})
	updateIncident(t, client, incident.ID, map[string]any{"status": "resolved"})

	resp, err := client.GET("/api/v1/services/" + svc.ID + "/status-log?limit=2&offset=1")
	require.NoError(t, err)

	var out envelope[statusLogPage]
	testutil.DecodeJSON(t, resp, &out)
	assert.Equal(t, 4, out.Data.Total)
	assert.Equal(t, 2, out.Data.Limit)
	assert.Equal(t, 1, out.Data.Offset)
	require.Len(t, out.Data.Entries, 2)
	assert.True(t, out.Data.Entries[1].Before(&out.Data.Entries[0]), "newest first")
}
