package client

import (
	"context"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
	"github.com/fivetwenty-io/cloudcore/internal/http"
	"github.com/fivetwenty-io/cloudcore/internal/wait"
	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
)

// Volume is a block storage volume.
type Volume struct {
	ID               string    `json:"id"                          yaml:"id"`
	Name             string    `json:"display_name,omitempty"      yaml:"name,omitempty"`
	Status           string    `json:"status"                      yaml:"status"`
	Size             int       `json:"size"                        yaml:"size"`
	VolumeType       string    `json:"volume_type,omitempty"       yaml:"volume_type,omitempty"`
	AvailabilityZone string    `json:"availability_zone,omitempty" yaml:"availability_zone,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitzero"         yaml:"created_at,omitempty"`
}

type volumeEnvelope struct {
	Volume Volume `json:"volume"`
}

// VolumesClient reads and deletes block storage volumes.
type VolumesClient struct {
	service *ServiceClient
}

// NewVolumesClient creates a VolumesClient on top of a block storage service client.
func NewVolumesClient(service *ServiceClient) *VolumesClient {
	return &VolumesClient{service: service}
}

// Get retrieves a volume.
func (c *VolumesClient) Get(ctx context.Context, id string) (*Volume, error) {
	if id == "" {
		return nil, ErrResourceIDRequired
	}

	var envelope volumeEnvelope

	_, err := c.service.Do(ctx, &http.Request{Method: nethttp.MethodGet, Path: "/volumes/" + id}, &envelope)
	if err != nil {
		return nil, fmt.Errorf("getting volume %s: %w", id, err)
	}

	return &envelope.Volume, nil
}

// Delete deletes a volume. Deletion is asynchronous; use WaitForDeleted to
// observe it.
func (c *VolumesClient) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrResourceIDRequired
	}

	_, err := c.service.Do(ctx, &http.Request{Method: nethttp.MethodDelete, Path: "/volumes/" + id}, nil)
	if err != nil {
		return fmt.Errorf("deleting volume %s: %w", id, err)
	}

	return nil
}

// WaitForStatus polls until the volume reaches status. The "error" status
// always fails the wait, as do any extra errorStatuses.
func (c *VolumesClient) WaitForStatus(ctx context.Context, id, status string, errorStatuses ...string) (*Volume, error) {
	if id == "" {
		return nil, ErrResourceIDRequired
	}

	return wait.ForStatus(ctx, c.service.waiter, c.spec(id, status, errorStatuses))
}

// WaitForAvailable polls until the volume is available.
func (c *VolumesClient) WaitForAvailable(ctx context.Context, id string) (*Volume, error) {
	return c.WaitForStatus(ctx, id, constants.VolumeStatusAvailable)
}

// WaitForStatusAsync runs WaitForStatus in its own goroutine.
func (c *VolumesClient) WaitForStatusAsync(ctx context.Context, id, status string, errorStatuses ...string) *cloudcore.Future[*Volume] {
	return wait.ForStatusAsync(ctx, c.service.waiter, c.spec(id, status, errorStatuses))
}

// WaitForDeleted polls until the volume is gone.
func (c *VolumesClient) WaitForDeleted(ctx context.Context, id string) error {
	if id == "" {
		return ErrResourceIDRequired
	}

	return wait.UntilDeleted(ctx, c.service.waiter, c.spec(id, "", []string{"error_deleting"}))
}

func (c *VolumesClient) spec(id, status string, errorStatuses []string) wait.Spec[*Volume] {
	return wait.Spec[*Volume]{
		ResourceID:    id,
		Target:        status,
		ErrorStatuses: append([]string{constants.VolumeStatusError}, errorStatuses...),
		Fetch:         c.Get,
		Status:        func(volume *Volume) string { return volume.Status },
	}
}
