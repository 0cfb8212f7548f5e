package sync

import (
	"context"
	"fmt"

	"github.com/alexradacina/schegl-app/internal/api"
	"github.com/alexradacina/schegl-app/internal/offline/queue"
)

// DefaultHandlers wires every queued entity kind to its service endpoint.
func DefaultHandlers(client *api.Client) Handlers {
	return Handlers{
		queue.KindMachine:         machineHandler(client),
		queue.KindAssignment:      assignmentHandler(client),
		queue.KindMachineOrder:    machineOrderHandler(client),
		queue.KindTrackingSession: trackingHandler(client),
	}
}

func machineHandler(client *api.Client) Handler {
	return func(ctx context.Context, m queue.Mutation) error {
		payload, ok := m.Payload.(queue.MachinePayload)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for machine mutation", m.Payload)
		}
		_, err := client.CreateMachine(ctx, payload.Machine)
		return err
	}
}

func assignmentHandler(client *api.Client) Handler {
	return func(ctx context.Context, m queue.Mutation) error {
		payload, ok := m.Payload.(queue.AssignmentStatusPayload)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for assignment mutation", m.Payload)
		}
		return client.UpdateAssignmentStatus(ctx, payload.AssignmentID, payload.Status, payload.Notes)
	}
}

func machineOrderHandler(client *api.Client) Handler {
	return func(ctx context.Context, m queue.Mutation) error {
		payload, ok := m.Payload.(queue.MachineOrderPayload)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for machine order mutation", m.Payload)
		}
		_, err := client.CreateMachineOrder(ctx, payload.Order)
		return err
	}
}

func trackingHandler(client *api.Client) Handler {
	return func(ctx context.Context, m queue.Mutation) error {
		payload, ok := m.Payload.(queue.TrackingBatchPayload)
		if !ok {
			return fmt.Errorf("unexpected payload type %T for tracking mutation", m.Payload)
		}
		_, err := client.SubmitTrackingBatch(ctx, payload.Items)
		return err
	}
}
