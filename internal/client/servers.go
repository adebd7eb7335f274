package client

import (
	"context"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/fivetwenty-io/cloudcore/internal/http"
	"github.com/fivetwenty-io/cloudcore/internal/wait"
)

// Server is a compute instance.
type Server struct {
	ID        string       `json:"id"                              yaml:"id"`
	Name      string       `json:"name"                            yaml:"name"`
	Status    string       `json:"status"                          yaml:"status"`
	Progress  int          `json:"progress"                        yaml:"progress"`
	TaskState string       `json:"OS-EXT-STS:task_state,omitempty" yaml:"task_state,omitempty"`
	Fault     *ServerFault `json:"fault,omitempty"                 yaml:"fault,omitempty"`
}

// ServerFault describes why a server entered the ERROR status.
type ServerFault struct {
	Code    int    `json:"code"    yaml:"code"`
	Message string `json:"message" yaml:"message"`
}

type serverEnvelope struct {
	Server Server `json:"server"`
}

// ServersClient reads and deletes compute servers.
type ServersClient struct {
	service *ServiceClient
}

// NewServersClient creates a ServersClient on top of a compute service client.
func NewServersClient(service *ServiceClient) *ServersClient {
	return &ServersClient{service: service}
}

// Get retrieves a server.
func (c *ServersClient) Get(ctx context.Context, id string) (*Server, error) {
	if id == "" {
		return nil, ErrResourceIDRequired
	}

	var envelope serverEnvelope

	_, err := c.service.Do(ctx, &http.Request{Method: nethttp.MethodGet, Path: "/servers/" + id}, &envelope)
	if err != nil {
		return nil, fmt.Errorf("getting server %s: %w", id, err)
	}

	return &envelope.Server, nil
}

// Delete deletes a server.
func (c *ServersClient) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrResourceIDRequired
	}

	_, err := c.service.Do(ctx, &http.Request{Method: nethttp.MethodDelete, Path: "/servers/" + id}, nil)
	if err != nil {
		return fmt.Errorf("deleting server %s: %w", id, err)
	}

	return nil
}

// WaitForActive polls until the server is ACTIVE. Compute reports every
// failure as the generic ERROR status, which ends the wait at once.
func (c *ServersClient) WaitForActive(ctx context.Context, id string) (*Server, error) {
	if id == "" {
		return nil, ErrResourceIDRequired
	}

	return wait.ForStatus(ctx, c.service.waiter, wait.Spec[*Server]{
		ResourceID: id,
		Target:     constants.ServerStatusActive,
		Fetch:      c.Get,
		Status:     func(server *Server) string { return server.Status },
		Failed: func(server *Server) bool {
			return strings.EqualFold(server.Status, constants.ServerStatusError)
		},
	})
}

// WaitForDeleted polls until the server is gone.
func (c *ServersClient) WaitForDeleted(ctx context.Context, id string) error {
	if id == "" {
		return ErrResourceIDRequired
	}

	return wait.UntilDeleted(ctx, c.service.waiter, wait.Spec[*Server]{
		ResourceID:    id,
		Target:        "DELETED",
		ErrorStatuses: []string{constants.ServerStatusError},
		Fetch:         c.Get,
		Status:        func(server *Server) string { return server.Status },
	})
}
