package pkgserver_test

import (
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/encryption4all/irmaseal/identity"
	"github.com/encryption4all/irmaseal/kem/kemsim"
	"github.com/encryption4all/irmaseal/pkg/api"
	"github.com/encryption4all/irmaseal/pkg/pkgserver"
)

func newTestServer(t *testing.T) (*pkgserver.Server, *httptest.Server) {
	t.Helper()
	scheme := kemsim.New()
	mpk, msk, err := scheme.Setup(rand.Reader)
	require.NoError(t, err)
	srv, err := pkgserver.New(scheme, mpk, msk, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestParametersEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v2/parameters")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("ETag"))

	var params api.Parameters
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&params))
	require.NotEmpty(t, params.PublicKey)
}

func TestStartValidityOverCapRejected(t *testing.T) {
	_, ts := newTestServer(t)
	over := uint64(86401)
	body, _ := json.Marshal(api.KeyRequest{
		Con:      []identity.Attribute{identity.NewAttribute("email", "a@example.com")},
		Validity: &over,
	})
	resp, err := http.Post(ts.URL+"/v2/irma/start", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartDefaultValidityAccepted(t *testing.T) {
	_, ts := newTestServer(t)
	body, _ := json.Marshal(api.KeyRequest{Con: []identity.Attribute{identity.NewAttribute("email", "a@example.com")}})
	resp, err := http.Post(ts.URL+"/v2/irma/start", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sd api.SessionData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sd))
	require.NotEmpty(t, sd.Token)
	require.NotEmpty(t, sd.SessionPtr)
}

func TestFullKeyIssuanceFlow(t *testing.T) {
	srv, ts := newTestServer(t)

	con := []identity.Attribute{identity.NewAttribute("email", "alice@example.com")}
	body, _ := json.Marshal(api.KeyRequest{Con: con})
	resp, err := http.Post(ts.URL+"/v2/irma/start", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	var sd api.SessionData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sd))
	resp.Body.Close()

	// Not done yet: jwt endpoint must refuse.
	resp, err = http.Get(ts.URL + "/v2/irma/jwt/" + sd.Token)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	srv.Oracle().Disclose(sd.Token, con)

	resp, err = http.Get(ts.URL + "/v2/irma/jwt/" + sd.Token)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jwtBytes := make([]byte, 4096)
	n, _ := resp.Body.Read(jwtBytes)
	jwt := string(jwtBytes[:n])

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v2/irma/key/1700000000", nil)
	req.Header.Set("Authorization", "Bearer "+jwt)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var kr api.KeyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&kr))
	require.NotNil(t, kr.Key)
}
