package discord

import (
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/patrol-time-bot/internal/app/service"
)

// StateChannels resuelve canales con el State de discordgo y cae a REST si no están.
type StateChannels struct {
	s *discordgo.Session
}

func NewStateChannels(s *discordgo.Session) *StateChannels { return &StateChannels{s: s} }

func (c *StateChannels) safeGetChannel(id string) (*discordgo.Channel, error) {
	if ch, err := c.s.State.Channel(id); err == nil && ch != nil {
		return ch, nil
	}
	ch, err := c.s.Channel(id)
	if err != nil {
		return nil, err
	}
	_ = c.s.State.ChannelAdd(ch)
	return ch, nil
}

func (c *StateChannels) ChannelInfo(channelID int64) (service.ChannelInfo, error) {
	ch, err := c.safeGetChannel(strconv.FormatInt(channelID, 10))
	if err != nil {
		return service.ChannelInfo{}, err
	}
	return channelInfo(ch), nil
}

func channelInfo(ch *discordgo.Channel) service.ChannelInfo {
	info := service.ChannelInfo{Name: ch.Name}
	if ch.ParentID != "" {
		if p, err := parseSnowflake(ch.ParentID); err == nil {
			info.ParentID = p
		}
	}
	return info
}
