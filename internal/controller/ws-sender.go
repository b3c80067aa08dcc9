package controller

import (
	"context"
	"errors"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

func (c controller) writeToConn(ctx context.Context, conn *wsrouter.Conn, output *protocol.Output) error {
	if conn == nil {
		return nil
	}

	if err := conn.WriteJSON(output); err != nil {
		c.logger.DebugContext(ctx, "failed to write to conn", "type", output.Type, "error", err)
		return err
	}

	return nil
}

// broadcast writes output to every conn. A failing conn does not stop the
// others; its reader loop cleans it up.
func (c controller) broadcast(ctx context.Context, conns []*wsrouter.Conn, output *protocol.Output) error {
	var errs []error
	for _, conn := range conns {
		if err := c.writeToConn(ctx, conn, output); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (c controller) ack(ctx context.Context, conn *wsrouter.Conn, payload any) error {
	requestId := wsrouter.GetRequestIdFromCtx(ctx)
	if requestId == "" {
		return nil
	}

	return c.writeToConn(ctx, conn, &protocol.Output{
		Type:      protocol.TypeAck,
		RequestId: requestId,
		Payload:   payload,
	})
}

func (c controller) broadcastMembersUpdated(ctx context.Context, conns []*wsrouter.Conn, members []domain.Membership, promotedID string) {
	if err := c.broadcast(ctx, conns, &protocol.Output{
		Type: protocol.TypeMembersUpdated,
		Payload: protocol.MembersUpdatedOutput{
			Members:    members,
			PromotedID: promotedID,
		},
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to broadcast members updated", "error", err)
	}
}

func (c controller) notifyRole(ctx context.Context, conn *wsrouter.Conn, role domain.Role) {
	if err := c.writeToConn(ctx, conn, &protocol.Output{
		Type:    protocol.TypeRoleUpdated,
		Payload: protocol.RoleUpdatedOutput{Role: role},
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to notify role update", "error", err)
	}
}

func (c controller) notifyPromoted(ctx context.Context, conn *wsrouter.Conn) {
	c.notifyRole(ctx, conn, domain.RoleAdmin)
}
