// Package pgclient is the HTTP client consumed by the reference CLI: it
// fetches PKG parameters, starts a key-issuance session, and polls until
// a user secret key is released or the 60-second ceiling of §4.6/§5 is
// reached.
package pgclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/encryption4all/irmaseal/errs"
	"github.com/encryption4all/irmaseal/pkg/api"
)

// ClientVersionHeader is the required identifying header every request
// carries, per §6: "<host>,<host_version>,<client>,<client_version>".
const ClientVersionHeader = "X-PostGuard-Client-Version"

// PollInterval and PollCeiling implement §4.6's polling cadence: 500ms
// between attempts, a 120-attempt (60s) ceiling before reporting Timeout.
const (
	PollInterval    = 500 * time.Millisecond
	PollCeiling     = 120
	ClientVersionID = "postguard-cli,0.1.0,irmaseal-go,0.1.0"
)

// Client talks to one PKG server.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New builds a Client for the PKG reachable at baseURL (no trailing
// slash).
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, hc: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set(ClientVersionHeader, ClientVersionID)
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "pgclient: request failed", err)
	}
	return resp, nil
}

// Parameters fetches the PKG's master public key.
func (c *Client) Parameters() (*api.Parameters, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/v2/parameters", nil)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "pgclient: failed to build request", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.IoError, fmt.Sprintf("pgclient: parameters request returned %d", resp.StatusCode))
	}
	var params api.Parameters
	if err := json.NewDecoder(resp.Body).Decode(&params); err != nil {
		return nil, errs.Wrap(errs.FormatViolation, "pgclient: malformed parameters response", err)
	}
	return &params, nil
}

// Start begins a key-issuance session over the given attribute
// conjunction. sessionKind selects the "irma" or "request" route prefix.
func (c *Client) Start(sessionKind string, keyReq api.KeyRequest) (*api.SessionData, error) {
	body, err := json.Marshal(keyReq)
	if err != nil {
		return nil, errs.Wrap(errs.FormatViolation, "pgclient: failed to encode key request", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v2/"+sessionKind+"/start", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "pgclient: failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusBadRequest {
		return nil, errs.New(errs.ValidityError, "pgclient: requested validity rejected by the PKG")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.IoError, fmt.Sprintf("pgclient: start request returned %d", resp.StatusCode))
	}
	var sd api.SessionData
	if err := json.NewDecoder(resp.Body).Decode(&sd); err != nil {
		return nil, errs.Wrap(errs.FormatViolation, "pgclient: malformed session data", err)
	}
	return &sd, nil
}

func (c *Client) jwt(sessionKind, token string) (string, bool, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/v2/"+sessionKind+"/jwt/"+token, nil)
	if err != nil {
		return "", false, errs.Wrap(errs.IoError, "pgclient: failed to build request", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", false, errs.Wrap(errs.IoError, "pgclient: failed to read jwt body", err)
		}
		return string(b), true, nil
	case http.StatusConflict:
		return "", false, nil
	default:
		return "", false, errs.New(errs.SessionFailure, fmt.Sprintf("pgclient: jwt request returned %d", resp.StatusCode))
	}
}

// Key retrieves the user secret key for the given identity timestamp,
// authenticated with the session jwt.
func (c *Client) Key(sessionKind, jwt string, timestamp uint64) (*api.KeyResponse, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/v2/"+sessionKind+"/key/"+strconv.FormatUint(timestamp, 10), nil)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "pgclient: failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwt)
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.SessionFailure, fmt.Sprintf("pgclient: key request returned %d", resp.StatusCode))
	}
	var kr api.KeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&kr); err != nil {
		return nil, errs.Wrap(errs.FormatViolation, "pgclient: malformed key response", err)
	}
	return &kr, nil
}

// PollForKey implements the client-side state machine of §4.6: it polls
// the jwt endpoint every PollInterval until the session completes, then
// retrieves and returns the user secret key, or fails with SessionFailure
// or Timeout. A cancelled session answers the jwt endpoint with the same
// 409 status as a pending one, so PollForKey keeps polling it until the
// ceiling and reports Timeout; it never returns the Cancelled state.
func (c *Client) PollForKey(sessionKind, token string, timestamp uint64) ([]byte, api.ClientState, error) {
	state := api.Started
	for attempt := 0; attempt < PollCeiling; attempt++ {
		state = api.Polling
		jwt, ready, err := c.jwt(sessionKind, token)
		if err != nil {
			return nil, state, err
		}
		if ready {
			kr, err := c.Key(sessionKind, jwt, timestamp)
			if err != nil {
				return nil, api.DoneInvalid, err
			}
			if kr.ProofStatus != nil && *kr.ProofStatus == api.ProofValid && kr.Key != nil {
				return kr.Key, api.KeyReleased, nil
			}
			return nil, api.DoneInvalid, errs.New(errs.SessionFailure, "pgclient: disclosure proof invalid, no key released")
		}
		time.Sleep(PollInterval)
	}
	return nil, api.Timeout, errs.New(errs.Timeout, "pgclient: polling ceiling reached without a completed session")
}
