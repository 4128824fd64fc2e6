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
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Add submits a job.
func (c *Client) Add(req AddRequest) (*AddResponse, error) {
	return call[AddResponse](c, "Add", req)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Running lists the jobs currently executing.
func (c *Client) Running() (*RunningResponse, error) {
	return call[RunningResponse](c, "Running", RunningRequest{})
}

// History lists recorded jobs.
func (c *Client) History(req HistoryRequest) (*HistoryResponse, error) {
	return call[HistoryResponse](c, "History", req)
}

// Describe returns one recorded job.
func (c *Client) Describe(id string) (*DescribeResponse, error) {
	return call[DescribeResponse](c, "Describe", DescribeRequest{ID: id})
}

// ClearHistory removes finished history records.
func (c *Client) ClearHistory() (*ClearHistoryResponse, error) {
	return call[ClearHistoryResponse](c, "ClearHistory", ClearHistoryRequest{})
}

// Kill stops every job and empties the queues.
func (c *Client) Kill() (*KillResponse, error) {
	return call[KillResponse](c, "Kill", KillRequest{})
}

// StopJob stops one job.
func (c *Client) StopJob(id string) (*JobActionResponse, error) {
	return call[JobActionResponse](c, "StopJob", JobRequest{ID: id})
}

// PauseJob pauses one job.
func (c *Client) PauseJob(id string) (*JobActionResponse, error) {
	return call[JobActionResponse](c, "PauseJob", JobRequest{ID: id})
}

// ResumeJob resumes one job.
func (c *Client) ResumeJob(id string) (*JobActionResponse, error) {
	return call[JobActionResponse](c, "ResumeJob", JobRequest{ID: id})
}

// SetMode switches the execution mode for newly submitted jobs.
func (c *Client) SetMode(mode string) (*SetModeResponse, error) {
	return call[SetModeResponse](c, "SetMode", SetModeRequest{Mode: mode})
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}
