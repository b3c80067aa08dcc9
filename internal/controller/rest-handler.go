package controller

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/service/channel"
	"github.com/sharetube/watchparty/pkg/rest"
)

type createChannelRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	DisplayName string `json:"display_name" validate:"required,max=32"`
}

type createChannelResponse struct {
	Channel  domain.Channel `json:"channel"`
	Identity string         `json:"identity"`
	Token    string         `json:"token"`
}

func (c controller) createChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		c.writeError(w, r, fmt.Errorf("%w: %w", domain.ErrValidation, err))
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.logger.InfoContext(r.Context(), "invalid create channel request", "errors", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	resp, err := c.channelService.CreateChannel(r.Context(), &channel.CreateChannelParams{
		Name:        req.Name,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.logger.InfoContext(r.Context(), "channel created", "channel_id", resp.Channel.ID)
	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": createChannelResponse{
		Channel:  resp.Channel,
		Identity: resp.Identity,
		Token:    resp.Token,
	}})
}

type joinChannelRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=32"`
}

type joinChannelResponse struct {
	Channel domain.Channel    `json:"channel"`
	Member  domain.Membership `json:"member"`
	Token   string            `json:"token"`
}

func (c controller) joinChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channel-id")

	var req joinChannelRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		c.writeError(w, r, fmt.Errorf("%w: %w", domain.ErrValidation, err))
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	resp, err := c.channelService.JoinChannel(r.Context(), &channel.JoinChannelParams{
		ChannelID:   channelID,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.broadcastMembersUpdated(r.Context(), resp.Conns, resp.Members, "")

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": joinChannelResponse{
		Channel: resp.Channel,
		Member:  resp.JoinedMember,
		Token:   resp.Token,
	}})
}

type getChannelResponse struct {
	Channel  domain.Channel       `json:"channel"`
	Role     domain.Role          `json:"role"`
	Members  []domain.Membership  `json:"members"`
	Playback domain.PlaybackState `json:"playback"`
}

func (c controller) getChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := c.getChannelIDFromCtx(ctx)
	identity := c.getIdentityFromCtx(ctx)

	role, err := c.channelService.RoleOf(ctx, channelID, identity)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	members, err := c.channelService.GetMembers(ctx, channelID, identity)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	ch, err := c.channelService.GetChannel(ctx, channelID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	playback, err := c.channelService.ReadPlayback(ctx, channelID, identity)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": getChannelResponse{
		Channel:  ch,
		Role:     role,
		Members:  members,
		Playback: playback,
	}})
}

func (c controller) leaveChannel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := c.getChannelIDFromCtx(ctx)

	resp, err := c.channelService.LeaveChannel(ctx, &channel.LeaveChannelParams{
		ChannelID: channelID,
		Identity:  c.getIdentityFromCtx(ctx),
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	if resp.Conn != nil {
		resp.Conn.CloseWithCode(protocol.CloseLeft, "left")
	}
	c.notifyPromoted(ctx, resp.PromotedConn)
	c.broadcastMembersUpdated(ctx, resp.Conns, resp.Members, resp.PromotedID)

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := c.getChannelIDFromCtx(ctx)

	if c.blobStore == nil {
		rest.WriteJSON(w, http.StatusServiceUnavailable, rest.Envelope{"error": errorOutput(errAttachmentsDisabled)})
		return
	}

	role, err := c.channelService.RoleOf(ctx, channelID, c.getIdentityFromCtx(ctx))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if role == domain.RoleNone {
		c.writeError(w, r, domain.ErrNotAMember)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, c.maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			rest.WriteJSON(w, http.StatusRequestEntityTooLarge, rest.Envelope{"error": errorOutput(
				fmt.Errorf("%w: upload exceeds %d bytes", domain.ErrValidation, maxBytesErr.Limit),
			)})
			return
		}

		c.writeError(w, r, fmt.Errorf("%w: %w", domain.ErrValidation, err))
		return
	}
	defer file.Close()

	attachment, err := c.blobStore.Upload(ctx, channelID, file, header.Size)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	c.logger.InfoContext(ctx, "attachment uploaded", "ref", attachment.Ref, "kind", attachment.Kind)
	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": attachment})
}
