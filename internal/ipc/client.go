package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to resume scheduled execution.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Butler.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to pause scheduled execution.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Butler.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon process to exit.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	var resp ShutdownResponse
	if err := c.client.Call("Butler.Shutdown", ShutdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Butler.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunRule executes one rule by id or name.
func (c *Client) RunRule(req RunRuleRequest) (*RunRuleResponse, error) {
	var resp RunRuleResponse
	if err := c.client.Call("Butler.RunRule", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunAll executes every rule in execution order.
func (c *Client) RunAll() (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.client.Call("Butler.RunAll", RunAllRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunSet executes the members of a rule set.
func (c *Client) RunSet(set string) (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.client.Call("Butler.RunSet", RunSetRequest{Set: set}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Estimate previews a rule's impact without acting.
func (c *Client) Estimate(req EstimateRequest) (*EstimateResponse, error) {
	var resp EstimateResponse
	if err := c.client.Call("Butler.Estimate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rules lists rules in document order.
func (c *Client) Rules() (*RulesResponse, error) {
	var resp RulesResponse
	if err := c.client.Call("Butler.Rules", RulesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sets lists rule sets.
func (c *Client) Sets() (*SetsResponse, error) {
	var resp SetsResponse
	if err := c.client.Call("Butler.Sets", SetsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Services fetches the client API service catalog.
func (c *Client) Services() (*ServicesResponse, error) {
	var resp ServicesResponse
	if err := c.client.Call("Butler.Services", ServicesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchRuns pages through the run history.
func (c *Client) SearchRuns(req RunSearchRequest) (*RunSearchResponse, error) {
	var resp RunSearchResponse
	if err := c.client.Call("Butler.SearchRuns", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunDetails fetches one run and its file events.
func (c *Client) RunDetails(runID string) (*RunDetailsResponse, error) {
	var resp RunDetailsResponse
	if err := c.client.Call("Butler.RunDetails", RunDetailsRequest{RunID: runID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FileLookup fetches governance state and history for a file hash.
func (c *Client) FileLookup(hash string) (*FileLookupResponse, error) {
	var resp FileLookupResponse
	if err := c.client.Call("Butler.FileLookup", FileLookupRequest{Hash: hash}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RuleStats fetches run statistics for one rule.
func (c *Client) RuleStats(rule string) (*RuleStatsResponse, error) {
	var resp RuleStatsResponse
	if err := c.client.Call("Butler.RuleStats", RuleStatsRequest{Rule: rule}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PruneLogs compacts duplicate no-op file events.
func (c *Client) PruneLogs() (*PruneLogsResponse, error) {
	var resp PruneLogsResponse
	if err := c.client.Call("Butler.PruneLogs", PruneLogsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Butler.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Butler.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
