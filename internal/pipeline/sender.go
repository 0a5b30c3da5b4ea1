package pipeline

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/leadflow/internal/channel"
)

// ChannelSender is the outbound surface of the chat gateway the
// pipeline and workers use.
type ChannelSender interface {
	SendText(ctx context.Context, tenantID, to, body string) (*channel.SendResult, error)
	SendMedia(ctx context.Context, tenantID, to string, kind channel.MediaKind, url, caption string) (*channel.SendResult, error)
}

// sendFragments splits a reply into channel-sized fragments and sends
// them in order. Returns the channel message id of the first fragment
// (the one receipts track) and how many fragments went out before any
// failure.
func sendFragments(ctx context.Context, sender ChannelSender, tenantID, to, body string) (string, int, error) {
	fragments := channel.SplitMessage(body)
	if len(fragments) == 0 {
		return "", 0, fmt.Errorf("empty reply body")
	}

	var firstID string
	for i, frag := range fragments {
		res, err := sender.SendText(ctx, tenantID, to, frag)
		if err != nil {
			return firstID, i, err
		}
		if i == 0 {
			firstID = res.ChannelMessageID
		}
	}
	return firstID, len(fragments), nil
}
