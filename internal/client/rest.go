package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/protocol"
)

// Credentials identify a member of a channel.
type Credentials struct {
	ChannelID string `json:"channel_id"`
	Identity  string `json:"identity"`
	Token     string `json:"token"`
}

// CreateChannel creates a channel and returns the creator's credentials.
func CreateChannel(ctx context.Context, serverURL, name, displayName string) (Credentials, error) {
	var out struct {
		Channel  domain.Channel `json:"channel"`
		Identity string         `json:"identity"`
		Token    string         `json:"token"`
	}
	if err := postJSON(ctx, serverURL, "/api/v1/channels", map[string]string{
		"name":         name,
		"display_name": displayName,
	}, &out); err != nil {
		return Credentials{}, err
	}

	return Credentials{ChannelID: out.Channel.ID, Identity: out.Identity, Token: out.Token}, nil
}

// JoinChannel joins an existing channel as a member.
func JoinChannel(ctx context.Context, serverURL, channelID, displayName string) (Credentials, error) {
	var out struct {
		Member domain.Membership `json:"member"`
		Token  string            `json:"token"`
	}
	if err := postJSON(ctx, serverURL, "/api/v1/channels/"+url.PathEscape(channelID)+"/members", map[string]string{
		"display_name": displayName,
	}, &out); err != nil {
		return Credentials{}, err
	}

	return Credentials{ChannelID: channelID, Identity: out.Member.Identity, Token: out.Token}, nil
}

func postJSON(ctx context.Context, serverURL, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(serverURL, "/")+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Data  json.RawMessage       `json:"data"`
		Error *protocol.ErrorOutput `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if envelope.Error != nil {
			if sentinel := domain.FromCode(envelope.Error.Code); sentinel != nil {
				return fmt.Errorf("%w: %s", sentinel, envelope.Error.Message)
			}
			return fmt.Errorf("request failed: %s", envelope.Error.Message)
		}

		return fmt.Errorf("%w: request failed with status %d", domain.ErrValidation, resp.StatusCode)
	}

	return json.Unmarshal(envelope.Data, out)
}
