package transport

import (
	"errors"
	"fmt"
	"net/rpc"
	"strings"

	"DistMR/internal/coordinator"
	"DistMR/internal/types"
)

// Client is a worker's connection to the coordinator. Calls are
// synchronous with no timeout or retry; any transport error is returned
// to the caller.
type Client struct {
	rpc      *rpc.Client
	workerID string
}

// Dial opens one persistent connection to the coordinator at addr.
func Dial(addr, workerID string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial coordinator %s: %w", addr, err)
	}
	return &Client{rpc: c, workerID: workerID}, nil
}

// call invokes method and maps a remote NotFound back to coordinator.ErrNotFound.
func (c *Client) call(method string, args interface{}, reply interface{}) error {
	err := c.rpc.Call(ServiceName+"."+method, args, reply)
	if err == nil {
		return nil
	}

	var serverErr rpc.ServerError
	if errors.As(err, &serverErr) {
		msg := string(serverErr)
		if strings.HasPrefix(msg, coordinator.ErrNotFound.Error()) {
			return fmt.Errorf("%w%s", coordinator.ErrNotFound, strings.TrimPrefix(msg, coordinator.ErrNotFound.Error()))
		}
	}
	return fmt.Errorf("rpc %s failed: %w", method, err)
}

// NumReduce returns the job's partition count.
func (c *Client) NumReduce() (int, error) {
	var reply NumReduceReply
	if err := c.call("GetNumReduce", &WorkerArgs{WorkerID: c.workerID}, &reply); err != nil {
		return 0, err
	}
	return reply.NReduce, nil
}

// GetMapTask asks for the next READY map task.
func (c *Client) GetMapTask() (types.MapTask, bool, error) {
	var reply MapTaskReply
	if err := c.call("GetMapTask", &WorkerArgs{WorkerID: c.workerID}, &reply); err != nil {
		return types.MapTask{}, false, err
	}
	return reply.Task, reply.Found, nil
}

// CompleteMapTask reports a finished map task.
func (c *Client) CompleteMapTask(id int) error {
	return c.call("CompleteMapTask", &CompleteArgs{WorkerID: c.workerID, ID: id}, &CompleteReply{})
}

// MapDone reports whether every map task is done.
func (c *Client) MapDone() (bool, error) {
	var reply DoneReply
	if err := c.call("MapDone", &WorkerArgs{WorkerID: c.workerID}, &reply); err != nil {
		return false, err
	}
	return reply.Done, nil
}

// GetReduceTask asks for the next READY reduce partition.
func (c *Client) GetReduceTask() (types.ReduceTask, bool, error) {
	var reply ReduceTaskReply
	if err := c.call("GetReduceTask", &WorkerArgs{WorkerID: c.workerID}, &reply); err != nil {
		return types.ReduceTask{}, false, err
	}
	return reply.Task, reply.Found, nil
}

// CompleteReduceTask reports a finished reduce partition.
func (c *Client) CompleteReduceTask(partition int) error {
	return c.call("CompleteReduceTask", &CompleteArgs{WorkerID: c.workerID, ID: partition}, &CompleteReply{})
}

// ReduceDone reports whether every reduce task is done.
func (c *Client) ReduceDone() (bool, error) {
	var reply DoneReply
	if err := c.call("ReduceDone", &WorkerArgs{WorkerID: c.workerID}, &reply); err != nil {
		return false, err
	}
	return reply.Done, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}
