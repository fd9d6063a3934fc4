//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/testutil"
	"github.com/stretchr/testify/require"
)

type envelope[T any] struct {
	Data T `json:"data"`
}

type statusLogPage struct {
	Entries []domain.StatusLogEntry `json:"entries"`
	Total   int                     `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

func createService(t *testing.T, client *testutil.Client, orgID, name string) domain.Service {
	t.Helper()

	resp, err := client.POST("/api/v1/services", map[string]any{
		"organization_id": orgID,
		"name":            name,
		"slug":            testutil.RandomSlug("svc"),
	})
	require.NoError(t, err)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create service: status %d: %s", resp.StatusCode, testutil.ReadBody(t, resp))
	}

	var out envelope[domain.Service]
	testutil.DecodeJSON(t, resp, &out)
	return out.Data
}

func createIncident(t *testing.T, client *testutil.Client, orgID, severity string, serviceIDs ...string) domain.Incident {
	t.Helper()

	resp, err := client.POST("/api/v1/incidents", map[string]any{
		"organization_id": orgID,
		"title":           "Incident " + testutil.RandomSlug("inc"),
		"severity":        severity,
		"service_ids":     serviceIDs,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out envelope[domain.Incident]
	testutil.DecodeJSON(t, resp, &out)
	return out.Data
}

func updateIncident(t *testing.T, client *testutil.Client, id string, body map[string]any) domain.Incident {
	t.Helper()

	resp, err := client.PATCH("/api/v1/incidents/"+id, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out envelope[domain.Incident]
	testutil.DecodeJSON(t, resp, &out)
	return out.Data
}

func getService(t *testing.T, client *testutil.Client, id string) domain.Service {
	t.Helper()

	resp, err := client.GET("/api/v1/services/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out envelope[domain.Service]
	testutil.DecodeJSON(t, resp, &out)
	return out.Data
}

func getStatusLog(t *testing.T, client *testutil.Client, serviceID string) statusLogPage {
	t.Helper()

	resp, err := client.GET("/api/v1/services/" + serviceID + "/status-log?limit=100")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out envelope[statusLogPage]
	testutil.DecodeJSON(t, resp, &out)
	return out.Data
}
